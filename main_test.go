package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/model"
)

func newTestApp(t *testing.T) (*app, http.Handler) {
	t.Helper()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	// Keep the debounce out of the way; tests drive saves manually.
	cfg.Editor.AutosaveDelayMs = 60_000

	database := db.NewSQLite(":memory:")
	if err := database.InitDB(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	a := newApp(cfg, database, localAuthProvider{}, zerolog.Nop())
	t.Cleanup(a.sessions.CloseAll)

	handler := a.authProvider.WithHeaderAuthorization()(secureHeaders(a.routes()))
	return a, handler
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(config.HCType, config.CTypeJSON)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func createNovel(t *testing.T, handler http.Handler) novelResponse {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/novels", novelPayload{
		Title:  "The Long Winter",
		Author: "A. Writer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status %d creating novel, got %d: %s", http.StatusCreated, rec.Code, rec.Body)
	}
	return decodeBody[novelResponse](t, rec)
}

func createChapter(t *testing.T, handler http.Handler, novelID model.NovelID) chapterResponse {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/novels/%s/chapters", novelID), chapterPayload{
		Title: "First Snow",
		Order: 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status %d creating chapter, got %d: %s", http.StatusCreated, rec.Code, rec.Body)
	}
	return decodeBody[chapterResponse](t, rec)
}

func openSession(t *testing.T, handler http.Handler, chapterID model.ChapterID) sessionResponse {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/sessions", map[string]string{
		"chapter_id": string(chapterID),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status %d opening session, got %d: %s", http.StatusCreated, rec.Code, rec.Body)
	}
	return decodeBody[sessionResponse](t, rec)
}

func TestNovelLifecycle(t *testing.T) {
	_, handler := newTestApp(t)

	novel := createNovel(t, handler)
	if novel.Title != "The Long Winter" {
		t.Errorf("Unexpected novel: %+v", novel)
	}

	t.Run("List returns the novel", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/novels", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
		}
		novels := decodeBody[[]novelResponse](t, rec)
		if len(novels) != 1 || novels[0].ID != novel.ID {
			t.Errorf("Unexpected novels: %+v", novels)
		}
	})

	t.Run("Update changes the title", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPut, "/api/novels/"+string(novel.ID), novelPayload{
			Title: "The Longer Winter",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
		}
		updated := decodeBody[novelResponse](t, rec)
		if updated.Title != "The Longer Winter" {
			t.Errorf("Expected the title to change, got %q", updated.Title)
		}
	})

	t.Run("Delete removes the novel", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodDelete, "/api/novels/"+string(novel.ID), nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected status %d, got %d", http.StatusNoContent, rec.Code)
		}

		rec = doJSON(t, handler, http.MethodGet, "/api/novels/"+string(novel.ID), nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected status %d after delete, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestEditorSessionFlow(t *testing.T) {
	_, handler := newTestApp(t)

	novel := createNovel(t, handler)
	chapter := createChapter(t, handler, novel.ID)
	session := openSession(t, handler, chapter.ID)

	if session.Status != "clean" {
		t.Errorf("Expected a fresh session to be clean, got %q", session.Status)
	}

	t.Run("Content edits mark the session dirty", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPut, fmt.Sprintf("/api/sessions/%s/content", session.ID), map[string]string{
			"content": "It was a dark and stormy night.",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body)
		}
		state := decodeBody[sessionResponse](t, rec)
		if state.Status != "dirty" {
			t.Errorf("Expected status dirty, got %q", state.Status)
		}
		if state.WordCount != 7 {
			t.Errorf("Expected 7 words, got %d", state.WordCount)
		}
		if !state.CanUndo {
			t.Error("Expected undo to be available after an edit")
		}
	})

	t.Run("Manual save persists and cleans", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/sessions/%s/save", session.ID), map[string]string{
			"message": "first draft",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body)
		}
		state := decodeBody[sessionResponse](t, rec)
		if state.Status != "clean" {
			t.Errorf("Expected status clean after save, got %q", state.Status)
		}

		// The chapter row reflects the draft.
		rec = doJSON(t, handler, http.MethodGet, "/api/chapters/"+string(chapter.ID), nil)
		got := decodeBody[chapterResponse](t, rec)
		if got.Content != "It was a dark and stormy night." {
			t.Errorf("Expected the saved content in the chapter, got %q", got.Content)
		}
	})

	t.Run("Save message records a manual version", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/chapters/%s/versions", chapter.ID), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
		}
		versions := decodeBody[[]versionResponse](t, rec)

		var manual int
		for _, v := range versions {
			if v.Kind == model.VersionManual && v.Message == "first draft" {
				manual++
			}
		}
		if manual != 1 {
			t.Errorf("Expected 1 manual version, got %d (versions: %+v)", manual, versions)
		}
	})

	t.Run("Undo reverts, redo restores", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/sessions/%s/undo", session.ID), nil)
		state := decodeBody[sessionResponse](t, rec)
		if state.Content != "" {
			t.Errorf("Expected undo back to the empty chapter, got %q", state.Content)
		}

		rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/sessions/%s/redo", session.ID), nil)
		state = decodeBody[sessionResponse](t, rec)
		if state.Content != "It was a dark and stormy night." {
			t.Errorf("Expected redo to restore the edit, got %q", state.Content)
		}
	})

	t.Run("Close flushes the session", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodDelete, "/api/sessions/"+string(session.ID), nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected status %d, got %d", http.StatusNoContent, rec.Code)
		}

		rec = doJSON(t, handler, http.MethodGet, "/api/sessions/"+string(session.ID), nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected status %d for a closed session, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestVersionRestore(t *testing.T) {
	_, handler := newTestApp(t)

	novel := createNovel(t, handler)
	chapter := createChapter(t, handler, novel.ID)
	session := openSession(t, handler, chapter.ID)

	doJSON(t, handler, http.MethodPut, fmt.Sprintf("/api/sessions/%s/content", session.ID), map[string]string{
		"content": "the original text",
	})
	doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/sessions/%s/save", session.ID), map[string]string{
		"message": "keep this",
	})
	doJSON(t, handler, http.MethodPut, fmt.Sprintf("/api/sessions/%s/content", session.ID), map[string]string{
		"content": "a heavy rewrite that went nowhere",
	})
	doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/sessions/%s/save", session.ID), nil)

	rec := doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/chapters/%s/versions", chapter.ID), nil)
	versions := decodeBody[[]versionResponse](t, rec)

	var target versionResponse
	for _, v := range versions {
		if v.Message == "keep this" {
			target = v
		}
	}
	if target.ID == "" {
		t.Fatalf("Expected to find the manual version, have %+v", versions)
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/versions/%s/restore", target.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body)
	}
	restored := decodeBody[chapterResponse](t, rec)
	if restored.Content != "the original text" {
		t.Errorf("Expected the restored content, got %q", restored.Content)
	}

	// The history gains a restore marker.
	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/chapters/%s/versions", chapter.ID), nil)
	versions = decodeBody[[]versionResponse](t, rec)
	if len(versions) == 0 || versions[0].Kind != model.VersionRestore {
		t.Error("Expected a restore marker at the head of the version history")
	}
}

func TestChapterPreview(t *testing.T) {
	_, handler := newTestApp(t)

	novel := createNovel(t, handler)
	chapter := createChapter(t, handler, novel.ID)
	session := openSession(t, handler, chapter.ID)

	doJSON(t, handler, http.MethodPut, fmt.Sprintf("/api/sessions/%s/content", session.ID), map[string]string{
		"content": "# First Snow\n\nIt fell all night.",
	})
	doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/sessions/%s/save", session.ID), nil)

	rec := doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/chapters/%s/preview", chapter.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get(config.HCType); ct != config.CTypeHTML {
		t.Errorf("Expected content type %q, got %q", config.CTypeHTML, ct)
	}
	if !strings.Contains(rec.Body.String(), "It fell all night.") {
		t.Errorf("Expected the rendered prose, got %s", rec.Body)
	}
	if rec.Header().Get(config.HETag) == "" {
		t.Error("Expected an ETag derived from the content hash")
	}
}

func TestNovelExport(t *testing.T) {
	_, handler := newTestApp(t)

	novel := createNovel(t, handler)
	chapter := createChapter(t, handler, novel.ID)
	session := openSession(t, handler, chapter.ID)

	doJSON(t, handler, http.MethodPut, fmt.Sprintf("/api/sessions/%s/content", session.ID), map[string]string{
		"content": "# First Snow\n\nIt fell all night.",
	})
	doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/sessions/%s/save", session.ID), nil)

	t.Run("EPUB", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/novels/%s/export?format=epub", novel.ID), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body)
		}
		if ct := rec.Header().Get(config.HCType); ct != config.CTypeEpub {
			t.Errorf("Expected content type %q, got %q", config.CTypeEpub, ct)
		}
		if !strings.HasPrefix(rec.Body.String(), "PK") {
			t.Error("Expected a zip container")
		}
	})

	t.Run("Markdown bundle", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/novels/%s/export?format=markdown", novel.ID), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body)
		}
		if ct := rec.Header().Get(config.HCType); ct != config.CTypeZip {
			t.Errorf("Expected content type %q, got %q", config.CTypeZip, ct)
		}
	})

	t.Run("Unknown format", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/novels/%s/export?format=docx", novel.ID), nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})
}

func TestNovelStats(t *testing.T) {
	_, handler := newTestApp(t)

	novel := createNovel(t, handler)
	chapter := createChapter(t, handler, novel.ID)
	session := openSession(t, handler, chapter.ID)

	doJSON(t, handler, http.MethodPut, fmt.Sprintf("/api/sessions/%s/content", session.ID), map[string]string{
		"content": "alpha beta gamma delta",
	})
	doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/sessions/%s/save", session.ID), nil)

	rec := doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/novels/%s/stats", novel.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body)
	}

	var stats struct {
		TotalWords int `json:"total_words"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.TotalWords != 4 {
		t.Errorf("Expected 4 total words, got %d", stats.TotalWords)
	}
}

func TestSessionNotFound(t *testing.T) {
	_, handler := newTestApp(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/sessions/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestArchiveNotConfigured(t *testing.T) {
	_, handler := newTestApp(t)

	novel := createNovel(t, handler)

	for _, tc := range []struct {
		name   string
		method string
		path   string
	}{
		{"List", http.MethodGet, fmt.Sprintf("/api/novels/%s/archives", novel.ID)},
		{"Download", http.MethodGet, fmt.Sprintf("/api/novels/%s/archives/export.epub", novel.ID)},
		{"Delete", http.MethodDelete, fmt.Sprintf("/api/novels/%s/archives/export.epub", novel.ID)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, handler, tc.method, tc.path, nil)
			if rec.Code != http.StatusNotFound {
				t.Errorf("Expected status %d without an archive bucket, got %d", http.StatusNotFound, rec.Code)
			}
		})
	}
}

func TestAIAssistNotConfigured(t *testing.T) {
	_, handler := newTestApp(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/ai/continue", map[string]string{"session_id": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status %d when AI is not configured, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestHealth(t *testing.T) {
	_, handler := newTestApp(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("Unexpected health body: %s", rec.Body)
	}
}
