// Package routes defines HTTP route constants for the application.
package routes

const (
	// Root
	RootPath = "/"

	// Health
	HealthPath = "/healthz"

	// SSE
	SSEPath = "/sse"

	// Novels
	APINovels = "/api/novels"
	APINovel  = "/api/novels/{id}"

	// Chapters
	APINovelChapters = "/api/novels/{id}/chapters"
	APIChapter       = "/api/chapters/{id}"

	// Editor sessions
	APISessions       = "/api/sessions"
	APISession        = "/api/sessions/{id}"
	APISessionContent = "/api/sessions/{id}/content"
	APISessionSummary = "/api/sessions/{id}/summary"
	APISessionUndo    = "/api/sessions/{id}/undo"
	APISessionRedo    = "/api/sessions/{id}/redo"
	APISessionSave    = "/api/sessions/{id}/save"

	// Versions
	APIChapterVersions = "/api/chapters/{id}/versions"
	APIVersion         = "/api/versions/{id}"
	APIVersionRestore  = "/api/versions/{id}/restore"

	// Preview and export
	APIChapterPreview = "/api/chapters/{id}/preview"
	APINovelExport    = "/api/novels/{id}/export"
	APINovelArchives  = "/api/novels/{id}/archives"
	APINovelArchive   = "/api/novels/{id}/archives/{filename}"

	// Stats
	APINovelStats = "/api/novels/{id}/stats"

	// AI assistance
	APIAIContinue  = "/api/ai/continue"
	APIAISummarize = "/api/ai/summarize"

	// Auth routes
	AuthChallenge = "/auth/challenge"
	AuthVerify    = "/auth/verify"
	WebhookClerk  = "/webhooks/clerk"
)
