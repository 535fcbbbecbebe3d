package model

import "time"

// VersionKind classifies how a checkpoint came to exist.
type VersionKind string

const (
	VersionAuto        VersionKind = "auto"
	VersionManual      VersionKind = "manual"
	VersionAIGenerated VersionKind = "ai-generated"
	VersionRestore     VersionKind = "restore"
)

// Version is a named, persisted snapshot of a chapter draft, distinct from
// the continuous auto-save stream.
type Version struct {
	ID        VersionID
	ChapterID ChapterID

	Summary string
	Content string

	Kind    VersionKind
	Message string

	WordCount int

	CreatedDate time.Time
}
