package editor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkwell-app/inkwell/internal/model"
)

type persistRecorder struct {
	mu    sync.Mutex
	calls []Snapshot
	err   error
}

func (p *persistRecorder) persist(_ model.ChapterID, snap Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, snap)
	return nil
}

func (p *persistRecorder) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *persistRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *persistRecorder) last() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

func noCheckpoint(model.ChapterID, Snapshot, model.VersionKind, string) {}

func newTestManager(persist PersistFunc, checkpoint CheckpointFunc, delay time.Duration) *Manager {
	if checkpoint == nil {
		checkpoint = noCheckpoint
	}
	return NewManager(Options{
		AutosaveDelay:   delay,
		MaxHistory:      50,
		CheckpointDelta: 50,
	}, persist, checkpoint, zerolog.Nop())
}

func TestManager_AutoSave(t *testing.T) {
	t.Run("Debounced edits persist once", func(t *testing.T) {
		rec := &persistRecorder{}
		m := newTestManager(rec.persist, nil, 40*time.Millisecond)

		ms := m.Open(model.ChapterID("ch-1"), "S", "abc")
		for _, v := range []string{"abcd", "abcde", "abcdef"} {
			if err := m.UpdateContent(ms.ID, v); err != nil {
				t.Fatalf("UpdateContent: %v", err)
			}
			time.Sleep(10 * time.Millisecond)
		}

		time.Sleep(200 * time.Millisecond)

		if got := rec.count(); got != 1 {
			t.Fatalf("Expected 1 persist call, got %d", got)
		}
		if rec.last().Content != "abcdef" {
			t.Errorf("Expected latest content to be persisted, got %q", rec.last().Content)
		}
		if ms.Store.Status() != StatusClean {
			t.Errorf("Expected status %q after auto-save, got %q", StatusClean, ms.Store.Status())
		}
	})

	t.Run("Failed persist keeps the draft and reports Error", func(t *testing.T) {
		rec := &persistRecorder{err: errors.New("backend down")}
		m := newTestManager(rec.persist, nil, 20*time.Millisecond)

		ms := m.Open(model.ChapterID("ch-1"), "S", "abc")
		if err := m.UpdateContent(ms.ID, "abcdef"); err != nil {
			t.Fatalf("UpdateContent: %v", err)
		}

		time.Sleep(120 * time.Millisecond)

		if ms.Store.Status() != StatusError {
			t.Errorf("Expected status %q, got %q", StatusError, ms.Store.Status())
		}
		if !ms.Store.HasUnsavedChanges() {
			t.Error("Expected the dirty draft to be retained on failure")
		}
		if got := ms.Store.Snapshot().Content; got != "abcdef" {
			t.Errorf("Expected draft content to survive, got %q", got)
		}
	})

	t.Run("Manual save bypasses the debounce", func(t *testing.T) {
		rec := &persistRecorder{}
		m := newTestManager(rec.persist, nil, time.Hour)

		ms := m.Open(model.ChapterID("ch-1"), "S", "abc")
		if err := m.UpdateContent(ms.ID, "abcdef"); err != nil {
			t.Fatalf("UpdateContent: %v", err)
		}

		if err := m.Save(ms.ID); err != nil {
			t.Fatalf("Save: %v", err)
		}

		if got := rec.count(); got != 1 {
			t.Errorf("Expected 1 persist call, got %d", got)
		}
	})
}

func TestManager_Close(t *testing.T) {
	t.Run("Teardown flushes the unsaved draft exactly once", func(t *testing.T) {
		rec := &persistRecorder{}
		m := newTestManager(rec.persist, nil, time.Hour) // debounce never fires

		ms := m.Open(model.ChapterID("ch-1"), "", "")
		if err := m.UpdateSummary(ms.ID, "S"); err != nil {
			t.Fatalf("UpdateSummary: %v", err)
		}
		if err := m.UpdateContent(ms.ID, "abc"); err != nil {
			t.Fatalf("UpdateContent: %v", err)
		}

		if err := m.Close(ms.ID); err != nil {
			t.Fatalf("Close: %v", err)
		}

		if got := rec.count(); got != 1 {
			t.Fatalf("Expected exactly 1 persist call on teardown, got %d", got)
		}
		want := Snapshot{Summary: "S", Content: "abc"}
		if rec.last() != want {
			t.Errorf("Expected flushed snapshot %+v, got %+v", want, rec.last())
		}

		if _, err := m.Get(ms.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected session to be forgotten, got %v", err)
		}
	})

	t.Run("Clean session does not persist on close", func(t *testing.T) {
		rec := &persistRecorder{}
		m := newTestManager(rec.persist, nil, time.Hour)

		ms := m.Open(model.ChapterID("ch-1"), "S", "abc")
		if err := m.Close(ms.ID); err != nil {
			t.Fatalf("Close: %v", err)
		}

		if got := rec.count(); got != 0 {
			t.Errorf("Expected no persist calls, got %d", got)
		}
	})

	t.Run("Failed flush keeps the session and its draft reachable", func(t *testing.T) {
		rec := &persistRecorder{err: errors.New("backend down")}
		m := newTestManager(rec.persist, nil, time.Hour)

		ms := m.Open(model.ChapterID("ch-1"), "", "")
		if err := m.UpdateContent(ms.ID, "unsaved edit"); err != nil {
			t.Fatalf("UpdateContent: %v", err)
		}

		var perr *PersistenceError
		if err := m.Close(ms.ID); !errors.As(err, &perr) {
			t.Fatalf("Expected a PersistenceError from Close, got %v", err)
		}

		got, err := m.Get(ms.ID)
		if err != nil {
			t.Fatalf("Expected the session to survive the failed flush: %v", err)
		}
		if got.Store.Snapshot().Content != "unsaved edit" {
			t.Errorf("Expected the dirty draft to be retained, got %q", got.Store.Snapshot().Content)
		}
		if got.Store.Status() != StatusError {
			t.Errorf("Expected status %q, got %q", StatusError, got.Store.Status())
		}

		// Once the backend recovers, retrying the close flushes and
		// forgets the session.
		rec.setErr(nil)
		if err := m.Close(ms.ID); err != nil {
			t.Fatalf("Close retry: %v", err)
		}
		if rec.last().Content != "unsaved edit" {
			t.Errorf("Expected the retry to flush the draft, got %q", rec.last().Content)
		}
		if _, err := m.Get(ms.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected session to be forgotten after the retry, got %v", err)
		}
	})

	t.Run("Reopen resumes the session when its flush fails", func(t *testing.T) {
		rec := &persistRecorder{err: errors.New("backend down")}
		m := newTestManager(rec.persist, nil, time.Hour)

		first := m.Open(model.ChapterID("ch-1"), "", "")
		if err := m.UpdateContent(first.ID, "unsaved edit"); err != nil {
			t.Fatalf("UpdateContent: %v", err)
		}

		second := m.Open(model.ChapterID("ch-1"), "", "fresh")
		if second != first {
			t.Fatal("Expected reopen to resume the session whose flush failed")
		}
		if second.Store.Snapshot().Content != "unsaved edit" {
			t.Errorf("Expected the dirty draft to be retained, got %q", second.Store.Snapshot().Content)
		}
	})

	t.Run("Reopening a chapter flushes the previous session", func(t *testing.T) {
		rec := &persistRecorder{}
		m := newTestManager(rec.persist, nil, time.Hour)

		first := m.Open(model.ChapterID("ch-1"), "", "")
		if err := m.UpdateContent(first.ID, "draft one"); err != nil {
			t.Fatalf("UpdateContent: %v", err)
		}

		second := m.Open(model.ChapterID("ch-1"), "", "fresh")

		if got := rec.count(); got != 1 {
			t.Fatalf("Expected the previous draft to be flushed, got %d calls", got)
		}
		if rec.last().Content != "draft one" {
			t.Errorf("Expected flushed content %q, got %q", "draft one", rec.last().Content)
		}
		if _, err := m.Get(first.ID); !errors.Is(err, ErrSessionNotFound) {
			t.Error("Expected the previous session to be gone")
		}
		if _, err := m.Get(second.ID); err != nil {
			t.Errorf("Expected the new session to be live: %v", err)
		}
	})
}

func TestManager_Checkpoint(t *testing.T) {
	t.Run("Substantial delta notifies the checkpointer", func(t *testing.T) {
		rec := &persistRecorder{}
		got := make(chan model.VersionKind, 1)
		checkpoint := func(_ model.ChapterID, _ Snapshot, kind model.VersionKind, _ string) {
			select {
			case got <- kind:
			default:
			}
		}
		m := newTestManager(rec.persist, checkpoint, time.Hour)

		ms := m.Open(model.ChapterID("ch-1"), "", "")
		long := make([]byte, 60)
		for i := range long {
			long[i] = 'a'
		}
		if err := m.UpdateContent(ms.ID, string(long)); err != nil {
			t.Fatalf("UpdateContent: %v", err)
		}

		select {
		case kind := <-got:
			if kind != model.VersionAuto {
				t.Errorf("Expected kind %q, got %q", model.VersionAuto, kind)
			}
		case <-time.After(time.Second):
			t.Fatal("Expected a checkpoint notification")
		}
	})

	t.Run("Small edits do not checkpoint", func(t *testing.T) {
		rec := &persistRecorder{}
		fired := make(chan struct{}, 1)
		checkpoint := func(model.ChapterID, Snapshot, model.VersionKind, string) {
			select {
			case fired <- struct{}{}:
			default:
			}
		}
		m := newTestManager(rec.persist, checkpoint, time.Hour)

		ms := m.Open(model.ChapterID("ch-1"), "", "base content here")
		if err := m.UpdateContent(ms.ID, "base content here!"); err != nil {
			t.Fatalf("UpdateContent: %v", err)
		}

		select {
		case <-fired:
			t.Error("Expected no checkpoint for a small delta")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("Manual checkpoint passes kind and message", func(t *testing.T) {
		rec := &persistRecorder{}
		type call struct {
			kind    model.VersionKind
			message string
		}
		got := make(chan call, 1)
		checkpoint := func(_ model.ChapterID, _ Snapshot, kind model.VersionKind, message string) {
			got <- call{kind, message}
		}
		m := newTestManager(rec.persist, checkpoint, time.Hour)

		ms := m.Open(model.ChapterID("ch-1"), "", "content")
		if err := m.Checkpoint(ms.ID, model.VersionManual, "before rewrite"); err != nil {
			t.Fatalf("Checkpoint: %v", err)
		}

		c := <-got
		if c.kind != model.VersionManual || c.message != "before rewrite" {
			t.Errorf("Unexpected checkpoint call %+v", c)
		}
	})
}

func TestManager_UndoRedo(t *testing.T) {
	rec := &persistRecorder{}
	m := newTestManager(rec.persist, nil, time.Hour)

	ms := m.Open(model.ChapterID("ch-1"), "", "one")
	if err := m.UpdateContent(ms.ID, "one two"); err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}

	content, err := m.Undo(ms.ID)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if content != "one" {
		t.Errorf("Expected %q, got %q", "one", content)
	}

	content, err = m.Redo(ms.ID)
	if err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if content != "one two" {
		t.Errorf("Expected %q, got %q", "one two", content)
	}

	if _, err := m.Undo(SessionID("missing")); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}
