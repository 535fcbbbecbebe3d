package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/inkwell-app/inkwell/internal/ai"
	"github.com/inkwell-app/inkwell/internal/analytics"
	"github.com/inkwell-app/inkwell/internal/auth"
	"github.com/inkwell-app/inkwell/internal/cache"
	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/editor"
	"github.com/inkwell-app/inkwell/internal/export"
	"github.com/inkwell-app/inkwell/internal/logger"
	"github.com/inkwell-app/inkwell/internal/model"
	"github.com/inkwell-app/inkwell/internal/render"
	"github.com/inkwell-app/inkwell/internal/repository"
	"github.com/inkwell-app/inkwell/internal/routes"
	"github.com/inkwell-app/inkwell/internal/sse"
	"github.com/inkwell-app/inkwell/internal/util"
	"github.com/inkwell-app/inkwell/internal/util/compression"
	"github.com/inkwell-app/inkwell/internal/version"
)

const defaultSyntaxTheme = "catppuccin-mocha"

// app wires the editor sessions, repositories and HTTP surface together.
// Everything it needs is injected so tests can build one around an
// in-memory database.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	db       db.DB
	chapters repository.ChapterRepository
	novels   *repository.NovelRepository
	archive  *repository.S3ArchiveStore

	checkpointer *version.Checkpointer
	collector    *analytics.Collector
	sessions     *editor.Manager
	renderer     *render.Renderer
	clients      *sse.Clients
	assistant    *ai.Client

	authProvider auth.AuthProvider
}

func newApp(cfg *config.Config, database db.DB, authProvider auth.AuthProvider, l zerolog.Logger) *app {
	checkpointer := version.NewCheckpointer(database, cfg.Editor.VersionRetention)
	checkpointer.SetCompressor(compression.New(cfg.Storage.Compression))

	a := &app{
		cfg: cfg,
		log: l,

		db:       database,
		chapters: buildChapterRepository(cfg, database),
		novels:   repository.NewNovelRepository(database),

		checkpointer: checkpointer,
		collector:    analytics.NewCollector(database),
		renderer:     render.NewRenderer(cache.NewRenderCache()),
		clients:      sse.NewClients(),

		authProvider: authProvider,
	}

	a.sessions = editor.NewManager(editor.Options{
		AutosaveDelay:   time.Duration(cfg.Editor.AutosaveDelayMs) * time.Millisecond,
		MaxHistory:      cfg.Editor.MaxHistory,
		CheckpointDelta: cfg.Editor.CheckpointDelta,
	}, a.persistDraft, a.checkpointDraft, l)

	return a
}

// buildChapterRepository picks the chapter backend. A configured manuscript
// directory serves a single read-only novel straight from disk; everything
// else lives in the database.
func buildChapterRepository(cfg *config.Config, database db.DB) repository.ChapterRepository {
	if cfg.Storage.ManuscriptDir != "" {
		return repository.NewFSChapterRepository(cfg.Storage.ManuscriptDir, model.NovelID("manuscript"))
	}
	repo := repository.NewDBChapterRepository(database)
	repo.SetCompressor(compression.New(cfg.Storage.Compression))
	return repo
}

// persistDraft writes a session snapshot back to the chapter row. Title
// changes ride along in the front matter.
func (a *app) persistDraft(chapterID model.ChapterID, snap editor.Snapshot) error {
	chapter, err := a.chapters.ReadChapter(string(chapterID))
	if err != nil {
		return err
	}

	chapter.Markdown = []byte(snap.Content)
	chapter.Summary = snap.Summary
	if meta, err := util.GetFrontMatter(chapter.Markdown); err == nil && meta.Title != "" {
		chapter.Title = meta.Title
	}

	if err := a.chapters.SetChapterContent(chapter); err != nil {
		return err
	}

	if err := a.novels.TouchNovel(chapter.NovelID); err != nil {
		a.log.Warn().Err(err).Str("novel_id", string(chapter.NovelID)).Msg("Failed to touch novel")
	}

	go a.clients.Broadcast(chapterID, sse.EventSaved)
	return nil
}

func (a *app) checkpointDraft(chapterID model.ChapterID, snap editor.Snapshot, kind model.VersionKind, message string) {
	if _, err := a.checkpointer.Checkpoint(chapterID, snap.Summary, snap.Content, kind, message); err != nil {
		a.log.Error().Err(err).Str("chapter_id", string(chapterID)).Msg("Checkpoint failed")
		return
	}
	go a.clients.Broadcast(chapterID, sse.EventCheckpoint)
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	if err := config.LoadConfig(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.AppConfig

	l := logger.New(cfg.Logging.Level)
	setLoggers(l)

	database := db.NewSQLite(cfg.Storage.DatabasePath)
	if err := database.InitDB(); err != nil {
		l.Fatal().Err(err).Msg(fmt.Sprintf(config.ErrInitializeDatabaseFmt, err))
	}
	defer database.Close()

	authProvider := buildAuthProvider(cfg, database, l)

	a := newApp(cfg, database, authProvider, l)

	if cfg.Storage.Archive.Enabled {
		a.archive = repository.NewS3ArchiveStore(
			os.Getenv("ARCHIVE_ACCESS_KEY_ID"),
			os.Getenv("ARCHIVE_SECRET_ACCESS_KEY"),
			cfg.Storage.Archive.Endpoint,
			cfg.Storage.Archive.Bucket,
		)
	}

	if cfg.Features.AIAssist.Enabled {
		assistant, err := ai.NewClient(
			os.Getenv("GEMINI_API_KEY"),
			cfg.AI.Model,
			cfg.AI.MaxTokens,
			cfg.AI.SceneContext,
		)
		if err != nil {
			l.Error().Err(err).Msg("AI assist disabled")
		} else {
			a.assistant = assistant
		}
	}

	a.chapters.SetReloadNotifier(func(chapterID model.ChapterID) {
		go a.clients.Broadcast(chapterID, sse.EventReload)
	})
	go a.chapters.Init()

	mux := a.routes()

	handler := a.authProvider.WithHeaderAuthorization()(secureHeaders(mux))

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: handler,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		l.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()
	l.Info().Msg("Shutting down")

	// Flush every open draft before the listener goes away.
	a.sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Shutdown error")
	}
}

func setLoggers(l zerolog.Logger) {
	config.SetLogger(l.With().Str("component", "config").Logger())
	db.SetLogger(l.With().Str("component", "db").Logger())
	repository.SetLogger(l.With().Str("component", "repository").Logger())
	version.SetLogger(l.With().Str("component", "version").Logger())
	render.SetLogger(l.With().Str("component", "render").Logger())
	export.SetLogger(l.With().Str("component", "export").Logger())
	analytics.SetLogger(l.With().Str("component", "analytics").Logger())
	ai.SetLogger(l.With().Str("component", "ai").Logger())
	auth.SetLogger(l.With().Str("component", "auth").Logger())
}

func buildAuthProvider(cfg *config.Config, database db.DB, l zerolog.Logger) auth.AuthProvider {
	if !cfg.Features.Authentication.Enabled {
		l.Warn().Msg("Authentication disabled, all requests act as the local user")
		return localAuthProvider{}
	}

	switch cfg.Features.Authentication.Type {
	case "clerk":
		return auth.NewClerkAuthProvider(os.Getenv("CLERK_API"), database)
	default:
		provider, err := auth.NewEd25519AuthProvider(
			os.Getenv("ED25519_PUBKEY"),
			"Authorization",
			model.UserID("admin"),
		)
		if err != nil {
			l.Fatal().Err(err).Msg(fmt.Sprintf(config.ErrCreateProviderFmt, err))
		}
		return provider
	}
}

// localAuthProvider authenticates every request as a fixed local user, for
// installs that turned authentication off.
type localAuthProvider struct{}

func (localAuthProvider) WithHeaderAuthorization() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.ContextWithUserID(r.Context(), model.UserID("local"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (localAuthProvider) GetUserIDFromSession(r *http.Request) (model.UserID, error) {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		return userID, nil
	}
	return model.UserID("local"), nil
}

func (p localAuthProvider) EnforceUserAndGetID(w http.ResponseWriter, r *http.Request) (model.UserID, error) {
	return p.GetUserIDFromSession(r)
}

func (localAuthProvider) HandleWebhookUser(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc(routes.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCType, config.CTypeJSON)
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc(routes.APINovels, a.handleNovels)
	mux.HandleFunc(routes.APINovel, a.handleNovel)
	mux.HandleFunc(routes.APINovelChapters, a.handleNovelChapters)
	mux.HandleFunc(routes.APIChapter, a.handleChapter)

	mux.HandleFunc(routes.APISessions, a.handleSessions)
	mux.HandleFunc(routes.APISession, a.handleSession)
	mux.HandleFunc(routes.APISessionContent, a.handleSessionContent)
	mux.HandleFunc(routes.APISessionSummary, a.handleSessionSummary)
	mux.HandleFunc(routes.APISessionUndo, a.handleSessionUndo)
	mux.HandleFunc(routes.APISessionRedo, a.handleSessionRedo)
	mux.HandleFunc(routes.APISessionSave, a.handleSessionSave)

	mux.HandleFunc(routes.APIChapterVersions, a.handleChapterVersions)
	mux.HandleFunc(routes.APIVersion, a.handleVersion)
	mux.HandleFunc(routes.APIVersionRestore, a.handleVersionRestore)

	mux.HandleFunc(routes.APIChapterPreview, a.handleChapterPreview)
	mux.HandleFunc(routes.APINovelExport, a.handleNovelExport)
	mux.HandleFunc(routes.APINovelArchives, a.handleNovelArchives)
	mux.HandleFunc(routes.APINovelArchive, a.handleNovelArchive)
	mux.HandleFunc(routes.APINovelStats, a.handleNovelStats)

	mux.HandleFunc(routes.APIAIContinue, a.handleAIContinue)
	mux.HandleFunc(routes.APIAISummarize, a.handleAISummarize)

	mux.HandleFunc(routes.SSEPath, a.handleSSE)
	mux.HandleFunc(routes.WebhookClerk, a.authProvider.HandleWebhookUser)

	if provider, ok := a.authProvider.(*auth.Ed25519AuthProvider); ok {
		auth.RegisterEd25519AuthRoutes(mux, provider)
	}

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

type novelPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
}

type novelResponse struct {
	ID          model.NovelID `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Author      string        `json:"author"`
	CreatedAt   time.Time     `json:"created_at"`
	ModifiedAt  time.Time     `json:"modified_at"`
}

func toNovelResponse(n *model.Novel) novelResponse {
	return novelResponse{
		ID:          n.ID,
		Title:       n.Title,
		Description: n.Description,
		Author:      n.Author,
		CreatedAt:   n.CreatedDate,
		ModifiedAt:  n.ModifiedDate,
	}
}

func (a *app) handleNovels(w http.ResponseWriter, r *http.Request) {
	userID, err := a.authProvider.EnforceUserAndGetID(w, r)
	if err != nil {
		return
	}

	switch r.Method {
	case http.MethodGet:
		novels, err := a.novels.GetNovels(userID)
		if err != nil {
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		out := make([]novelResponse, 0, len(novels))
		for i := range novels {
			out = append(out, toNovelResponse(&novels[i]))
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var payload novelPayload
		if err := decodeJSON(r, &payload); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		if payload.Title == "" {
			http.Error(w, "title required", http.StatusBadRequest)
			return
		}

		novel := a.novels.NewNovel(userID)
		novel.Title = payload.Title
		novel.Description = payload.Description
		novel.Author = payload.Author

		if err := a.novels.SaveNovel(novel); err != nil {
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, toNovelResponse(novel))

	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

// ownedNovel loads a novel and enforces that the requester owns it.
func (a *app) ownedNovel(w http.ResponseWriter, r *http.Request, id model.NovelID) (*model.Novel, model.UserID, bool) {
	userID, err := a.authProvider.EnforceUserAndGetID(w, r)
	if err != nil {
		return nil, "", false
	}

	novel, err := a.novels.ReadNovel(id)
	if err != nil {
		http.NotFound(w, r)
		return nil, "", false
	}
	if novel.Owner != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, "", false
	}
	return novel, userID, true
}

func (a *app) handleNovel(w http.ResponseWriter, r *http.Request) {
	novelID := model.NovelID(r.PathValue("id"))
	novel, _, ok := a.ownedNovel(w, r, novelID)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toNovelResponse(novel))

	case http.MethodPut:
		var payload novelPayload
		if err := decodeJSON(r, &payload); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		if payload.Title != "" {
			novel.Title = payload.Title
		}
		novel.Description = payload.Description
		novel.Author = payload.Author

		if err := a.novels.UpdateNovel(novel); err != nil {
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toNovelResponse(novel))

	case http.MethodDelete:
		if err := a.novels.DeleteNovel(novelID); err != nil {
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

type chapterPayload struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Order   int    `json:"order"`
}

type chapterResponse struct {
	ID         model.ChapterID `json:"id"`
	NovelID    model.NovelID   `json:"novel_id"`
	Title      string          `json:"title"`
	Summary    string          `json:"summary"`
	Order      int             `json:"order"`
	Content    string          `json:"content,omitempty"`
	WordCount  int             `json:"word_count"`
	ModifiedAt time.Time       `json:"modified_at"`
}

func toChapterResponse(c *model.Chapter, withContent bool) chapterResponse {
	resp := chapterResponse{
		ID:         c.ID,
		NovelID:    c.NovelID,
		Title:      c.DisplayTitle(),
		Summary:    c.Summary,
		Order:      c.Order,
		WordCount:  analytics.CountWords(string(c.Markdown)),
		ModifiedAt: c.ModifiedDate,
	}
	if withContent {
		resp.Content = string(c.Markdown)
	}
	return resp
}

func (a *app) handleNovelChapters(w http.ResponseWriter, r *http.Request) {
	novelID := model.NovelID(r.PathValue("id"))
	_, userID, ok := a.ownedNovel(w, r, novelID)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		chapters := a.chapters.GetChapterList(novelID)
		out := make([]chapterResponse, 0, len(chapters))
		for i := range chapters {
			out = append(out, toChapterResponse(&chapters[i], false))
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var payload chapterPayload
		if err := decodeJSON(r, &payload); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		chapter := a.chapters.NewChapter(novelID)
		chapter.Title = payload.Title
		chapter.Summary = payload.Summary
		chapter.Order = payload.Order
		chapter.Markdown = []byte{}
		chapter.Owner = userID

		if err := a.chapters.SaveChapter(chapter); err != nil {
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, toChapterResponse(chapter, true))

	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

// ownedChapter loads a chapter and enforces ownership.
func (a *app) ownedChapter(w http.ResponseWriter, r *http.Request, id model.ChapterID) (*model.Chapter, bool) {
	userID, err := a.authProvider.EnforceUserAndGetID(w, r)
	if err != nil {
		return nil, false
	}

	chapter, err := a.chapters.ReadChapter(string(id))
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	if chapter.Owner != "" && chapter.Owner != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}
	return chapter, true
}

func (a *app) handleChapter(w http.ResponseWriter, r *http.Request) {
	chapterID := model.ChapterID(r.PathValue("id"))
	chapter, ok := a.ownedChapter(w, r, chapterID)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toChapterResponse(chapter, true))

	case http.MethodPut:
		var payload chapterPayload
		if err := decodeJSON(r, &payload); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		if payload.Title != "" {
			chapter.Title = payload.Title
		}
		chapter.Summary = payload.Summary
		chapter.Order = payload.Order

		if err := a.chapters.SetChapterContent(chapter); err != nil {
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toChapterResponse(chapter, false))

	case http.MethodDelete:
		if err := a.chapters.DeleteChapter(chapterID); err != nil {
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

type sessionResponse struct {
	ID        editor.SessionID  `json:"id"`
	ChapterID model.ChapterID   `json:"chapter_id"`
	Status    editor.SaveStatus `json:"status"`

	Summary string `json:"summary"`
	Content string `json:"content"`

	WordCount      int `json:"word_count"`
	CharacterCount int `json:"character_count"`

	CanUndo      bool `json:"can_undo"`
	CanRedo      bool `json:"can_redo"`
	HistoryDepth int  `json:"history_depth"`
	Evictions    int  `json:"evictions"`
}

func toSessionResponse(ms *editor.ManagedSession) sessionResponse {
	snap := ms.Store.Snapshot()
	return sessionResponse{
		ID:        ms.ID,
		ChapterID: ms.ChapterID,
		Status:    ms.Store.Status(),

		Summary: snap.Summary,
		Content: snap.Content,

		WordCount:      ms.Store.WordCount(),
		CharacterCount: ms.Store.CharacterCount(),

		CanUndo:      ms.Store.CanUndo(),
		CanRedo:      ms.Store.CanRedo(),
		HistoryDepth: ms.Store.HistoryDepth(),
		Evictions:    ms.Store.HistoryEvictions(),
	}
}

func (a *app) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		ChapterID model.ChapterID `json:"chapter_id"`
	}
	if err := decodeJSON(r, &payload); err != nil || payload.ChapterID == "" {
		http.Error(w, "chapter_id required", http.StatusBadRequest)
		return
	}

	chapter, ok := a.ownedChapter(w, r, payload.ChapterID)
	if !ok {
		return
	}

	ms := a.sessions.Open(chapter.ID, chapter.Summary, string(chapter.Markdown))
	writeJSON(w, http.StatusCreated, toSessionResponse(ms))
}

// session resolves the session ID in the request path.
func (a *app) session(w http.ResponseWriter, r *http.Request) (*editor.ManagedSession, bool) {
	ms, err := a.sessions.Get(editor.SessionID(r.PathValue("id")))
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	return ms, true
}

func (a *app) handleSession(w http.ResponseWriter, r *http.Request) {
	ms, ok := a.session(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toSessionResponse(ms))

	case http.MethodDelete:
		if err := a.sessions.Close(ms.ID); err != nil {
			var perr *editor.PersistenceError
			if errors.As(err, &perr) {
				http.Error(w, "Flush failed: "+perr.Error(), http.StatusInternalServerError)
				return
			}
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

func (a *app) handleSessionContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	ms, ok := a.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if err := a.sessions.UpdateContent(ms.ID, payload.Content); err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(ms))
}

func (a *app) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	ms, ok := a.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Summary string `json:"summary"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if err := a.sessions.UpdateSummary(ms.ID, payload.Summary); err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(ms))
}

func (a *app) handleSessionUndo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	ms, ok := a.session(w, r)
	if !ok {
		return
	}

	if _, err := a.sessions.Undo(ms.ID); err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(ms))
}

func (a *app) handleSessionRedo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	ms, ok := a.session(w, r)
	if !ok {
		return
	}

	if _, err := a.sessions.Redo(ms.ID); err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(ms))
}

// handleSessionSave persists the draft immediately. A non-empty message
// also records a manual version checkpoint.
func (a *app) handleSessionSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	ms, ok := a.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Message string `json:"message"`
	}
	// The body is optional for a plain manual save.
	_ = decodeJSON(r, &payload)

	if err := a.sessions.Save(ms.ID); err != nil {
		var perr *editor.PersistenceError
		if errors.As(err, &perr) {
			writeJSON(w, http.StatusInternalServerError, toSessionResponse(ms))
			return
		}
		http.NotFound(w, r)
		return
	}

	if payload.Message != "" {
		if err := a.sessions.Checkpoint(ms.ID, model.VersionManual, payload.Message); err != nil {
			a.log.Error().Err(err).Msg("Manual checkpoint failed")
		}
	}

	writeJSON(w, http.StatusOK, toSessionResponse(ms))
}

type versionResponse struct {
	ID        model.VersionID   `json:"id"`
	ChapterID model.ChapterID   `json:"chapter_id"`
	Kind      model.VersionKind `json:"kind"`
	Message   string            `json:"message,omitempty"`
	WordCount int               `json:"word_count"`
	CreatedAt time.Time         `json:"created_at"`
	Content   string            `json:"content,omitempty"`
}

func toVersionResponse(v *model.Version, withContent bool) versionResponse {
	resp := versionResponse{
		ID:        v.ID,
		ChapterID: v.ChapterID,
		Kind:      v.Kind,
		Message:   v.Message,
		WordCount: v.WordCount,
		CreatedAt: v.CreatedDate,
	}
	if withContent {
		resp.Content = v.Content
	}
	return resp
}

func (a *app) handleChapterVersions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	chapterID := model.ChapterID(r.PathValue("id"))
	if _, ok := a.ownedChapter(w, r, chapterID); !ok {
		return
	}

	versions, err := a.checkpointer.List(chapterID)
	if err != nil {
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}

	out := make([]versionResponse, 0, len(versions))
	for i := range versions {
		out = append(out, toVersionResponse(&versions[i], false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *app) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	v, err := a.checkpointer.Get(model.VersionID(r.PathValue("id")))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if _, ok := a.ownedChapter(w, r, v.ChapterID); !ok {
		return
	}

	writeJSON(w, http.StatusOK, toVersionResponse(v, true))
}

// handleVersionRestore rolls a chapter back to a stored version. The
// restored content is written to the chapter row and connected editors are
// told to reload; any open session picks the content up on reopen.
func (a *app) handleVersionRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	versionID := model.VersionID(r.PathValue("id"))
	v, err := a.checkpointer.Get(versionID)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	chapter, ok := a.ownedChapter(w, r, v.ChapterID)
	if !ok {
		return
	}

	restored, err := a.checkpointer.Restore(versionID)
	if err != nil {
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}

	chapter.Markdown = []byte(restored.Content)
	chapter.Summary = restored.Summary
	if err := a.chapters.SetChapterContent(chapter); err != nil {
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}

	go a.clients.Broadcast(chapter.ID, sse.EventReload)
	writeJSON(w, http.StatusOK, toChapterResponse(chapter, true))
}

func (a *app) handleChapterPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	chapter, ok := a.ownedChapter(w, r, model.ChapterID(r.PathValue("id")))
	if !ok {
		return
	}

	syntaxTheme := r.URL.Query().Get("theme")
	if syntaxTheme == "" {
		syntaxTheme = defaultSyntaxTheme
	}

	// ?source=1 returns the highlighted markdown source instead of the
	// rendered prose.
	if r.URL.Query().Get("source") != "" {
		highlighted, err := render.HighlightMarkdown(string(chapter.Markdown), syntaxTheme)
		if err != nil {
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		w.Header().Set(config.HCType, config.CTypeHTML)
		w.Header().Set(config.HETag, chapter.MDContentHash)
		w.Write([]byte(highlighted))
		return
	}

	html, _ := a.renderer.RenderCached(chapter.Markdown, chapter.MDContentHash, syntaxTheme)

	w.Header().Set(config.HCType, config.CTypeHTML)
	w.Header().Set(config.HETag, chapter.MDContentHash)
	w.Write(html)
}

func (a *app) handleNovelExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	novelID := model.NovelID(r.PathValue("id"))
	novel, _, ok := a.ownedNovel(w, r, novelID)
	if !ok {
		return
	}

	chapters := a.chapters.GetChapterList(novelID)
	opts := export.Options{
		Language:     a.cfg.Export.Language,
		IncludeEmpty: a.cfg.Export.IncludeDrafts,
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "epub"
	}

	var buf bytes.Buffer
	var contentType, filename string

	switch format {
	case "epub":
		contentType = config.CTypeEpub
		filename = slugFilename(novel.Title, "epub")
		if err := export.WriteEpub(&buf, novel, chapters, opts); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	case "markdown":
		contentType = config.CTypeZip
		filename = slugFilename(novel.Title, "zip")
		if err := export.WriteMarkdownBundle(&buf, novel, chapters, opts); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	default:
		http.Error(w, "unknown format", http.StatusBadRequest)
		return
	}

	if a.archive != nil {
		stamped := fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102-150405"), filename)
		if _, err := a.archive.Put(r.Context(), novelID, stamped, contentType, buf.Bytes()); err != nil {
			a.log.Error().Err(err).Msg("Archive upload failed")
		}
	}

	w.Header().Set(config.HCType, contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

func slugFilename(title, ext string) string {
	if title == "" {
		title = "novel"
	}
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "novel." + ext
	}
	return string(out) + "." + ext
}

func (a *app) handleNovelArchives(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	if a.archive == nil {
		http.Error(w, "archive not configured", http.StatusNotFound)
		return
	}

	novelID := model.NovelID(r.PathValue("id"))
	if _, _, ok := a.ownedNovel(w, r, novelID); !ok {
		return
	}

	entries, err := a.archive.List(r.Context(), novelID)
	if err != nil {
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleNovelArchive downloads or deletes a single archived export,
// addressed by the filename reported in the archive listing.
func (a *app) handleNovelArchive(w http.ResponseWriter, r *http.Request) {
	if a.archive == nil {
		http.Error(w, "archive not configured", http.StatusNotFound)
		return
	}

	novelID := model.NovelID(r.PathValue("id"))
	if _, _, ok := a.ownedNovel(w, r, novelID); !ok {
		return
	}

	filename := r.PathValue("filename")
	if filename == "" {
		http.Error(w, "missing filename", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		body, contentType, err := a.archive.Get(r.Context(), novelID, filename)
		if err != nil {
			http.Error(w, "archive entry not found", http.StatusNotFound)
			return
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set(config.HCType, contentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	case http.MethodDelete:
		if err := a.archive.Delete(r.Context(), novelID, filename); err != nil {
			http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

func (a *app) handleNovelStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	novelID := model.NovelID(r.PathValue("id"))
	if _, _, ok := a.ownedNovel(w, r, novelID); !ok {
		return
	}

	stats, err := a.collector.NovelStats(novelID, a.chapters.GetChapterList(novelID))
	if err != nil {
		http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type aiRequest struct {
	SessionID editor.SessionID `json:"session_id"`
}

func (a *app) aiSession(w http.ResponseWriter, r *http.Request) (*editor.ManagedSession, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return nil, false
	}
	if a.assistant == nil {
		http.Error(w, "AI assist not configured", http.StatusNotFound)
		return nil, false
	}

	var payload aiRequest
	if err := decodeJSON(r, &payload); err != nil || payload.SessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return nil, false
	}

	ms, err := a.sessions.Get(payload.SessionID)
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	return ms, true
}

// handleAIContinue returns a continuation suggestion for the live draft.
// The suggestion is never applied server-side; the author decides.
func (a *app) handleAIContinue(w http.ResponseWriter, r *http.Request) {
	ms, ok := a.aiSession(w, r)
	if !ok {
		return
	}

	snap := ms.Store.Snapshot()
	suggestion, err := a.assistant.ContinueScene(r.Context(), snap.Summary, snap.Content)
	if err != nil {
		a.log.Error().Err(err).Msg("AI continue failed")
		http.Error(w, "AI generation failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"suggestion": suggestion})
}

func (a *app) handleAISummarize(w http.ResponseWriter, r *http.Request) {
	ms, ok := a.aiSession(w, r)
	if !ok {
		return
	}

	snap := ms.Store.Snapshot()
	summary, err := a.assistant.SummarizeChapter(r.Context(), snap.Content)
	if err != nil {
		a.log.Error().Err(err).Msg("AI summarize failed")
		http.Error(w, "AI generation failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (a *app) handleSSE(w http.ResponseWriter, r *http.Request) {
	chapterID := r.URL.Query().Get("chapter")
	if chapterID == "" {
		http.Error(w, "chapter parameter required", http.StatusBadRequest)
		return
	}

	w.Header().Set(config.HCType, "text/event-stream")
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Del("X-Content-Type-Options")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, "event: connected\ndata: SSE connection established\n\n")
	flusher.Flush()

	client := &sse.Client{
		Msg:       make(chan string),
		ChapterID: model.ChapterID(chapterID),
	}

	a.clients.Add(client)
	a.log.Debug().Str("chapter_id", chapterID).Msg("SSE client connected")

	defer func() {
		a.clients.Delete(client)
		a.log.Debug().Str("chapter_id", chapterID).Msg("SSE client disconnected")
	}()

	notify := r.Context().Done()
	for {
		select {
		case msg := <-client.Msg:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

func secureHeaders(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		h.ServeHTTP(w, r)
	})
}
