package editor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inkwell-app/inkwell/internal/model"
)

// PersistFunc is the host-provided persistence sink for a chapter draft.
type PersistFunc func(chapterID model.ChapterID, snap Snapshot) error

// CheckpointFunc snapshots a draft as a named version. Invoked
// fire-and-forget; the scheduler never blocks on it.
type CheckpointFunc func(chapterID model.ChapterID, snap Snapshot, kind model.VersionKind, message string)

type SessionID string

// ManagedSession ties a draft store and its auto-save scheduler to one
// chapter. Persistence calls are serialized through saveMu: a debounce fire
// racing a teardown flush coalesces instead of writing twice.
type ManagedSession struct {
	ID        SessionID
	ChapterID model.ChapterID

	Store *Session
	sched *Scheduler

	saveMu sync.Mutex
}

// Options tunes session behavior; zero values fall back to defaults.
type Options struct {
	AutosaveDelay   time.Duration
	MaxHistory      int
	CheckpointDelta int
}

// Manager owns the live editing sessions, one per open chapter.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[SessionID]*ManagedSession
	byChapter map[model.ChapterID]*ManagedSession

	persist    PersistFunc
	checkpoint CheckpointFunc

	opts Options
	log  zerolog.Logger
}

func NewManager(opts Options, persist PersistFunc, checkpoint CheckpointFunc, log zerolog.Logger) *Manager {
	if opts.AutosaveDelay <= 0 {
		opts.AutosaveDelay = DefaultAutosaveDelay
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.CheckpointDelta <= 0 {
		opts.CheckpointDelta = 50
	}

	return &Manager{
		sessions:   make(map[SessionID]*ManagedSession),
		byChapter:  make(map[model.ChapterID]*ManagedSession),
		persist:    persist,
		checkpoint: checkpoint,
		opts:       opts,
		log:        log,
	}
}

// Open starts an editing session for a chapter. An existing session for the
// same chapter is torn down first (flush, cancel), so a chapter never has
// two writers. If that teardown flush fails, the existing session is
// resumed instead of being replaced: its unsaved draft stays live.
func (m *Manager) Open(chapterID model.ChapterID, summary, content string) *ManagedSession {
	m.mu.RLock()
	prev, hadPrev := m.byChapter[chapterID]
	m.mu.RUnlock()

	if hadPrev {
		if err := m.Close(prev.ID); err != nil && err != ErrSessionNotFound {
			m.log.Error().Err(err).
				Str("chapter_id", string(chapterID)).
				Msg("Flush of previous session failed on reopen")
			return prev
		}
	}

	ms := &ManagedSession{
		ID:        SessionID(uuid.New().String()),
		ChapterID: chapterID,
		Store:     NewSession(m.opts.MaxHistory),
		sched:     NewScheduler(),
	}
	ms.Store.SetChapter(summary, content)
	ms.sched.ResetCheckpoint(len(content))

	m.mu.Lock()
	m.sessions[ms.ID] = ms
	m.byChapter[chapterID] = ms
	m.mu.Unlock()

	m.log.Debug().
		Str("session_id", string(ms.ID)).
		Str("chapter_id", string(chapterID)).
		Msg("Editor session opened")

	return ms
}

func (m *Manager) Get(id SessionID) (*ManagedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ms, nil
}

// UpdateContent applies a content edit and restarts the auto-save timer.
// A version checkpoint is notified when the accumulated delta since the
// last checkpoint is substantial.
func (m *Manager) UpdateContent(id SessionID, value string) error {
	ms, err := m.Get(id)
	if err != nil {
		return err
	}

	ms.Store.UpdateContent(value)
	m.scheduleSave(ms)

	if ms.sched.CheckpointDue(len(value), m.opts.CheckpointDelta) {
		snap := ms.Store.Snapshot()
		go m.checkpoint(ms.ChapterID, snap, model.VersionAuto, "")
	}

	return nil
}

func (m *Manager) UpdateSummary(id SessionID, value string) error {
	ms, err := m.Get(id)
	if err != nil {
		return err
	}

	ms.Store.UpdateSummary(value)
	m.scheduleSave(ms)
	return nil
}

func (m *Manager) Undo(id SessionID) (string, error) {
	ms, err := m.Get(id)
	if err != nil {
		return "", err
	}

	content := ms.Store.Undo()
	m.scheduleSave(ms)
	return content, nil
}

func (m *Manager) Redo(id SessionID) (string, error) {
	ms, err := m.Get(id)
	if err != nil {
		return "", err
	}

	content := ms.Store.Redo()
	m.scheduleSave(ms)
	return content, nil
}

// Save persists the session immediately, bypassing the debounce.
func (m *Manager) Save(id SessionID) error {
	ms, err := m.Get(id)
	if err != nil {
		return err
	}
	return m.save(ms)
}

// Checkpoint records a version snapshot of the current draft.
func (m *Manager) Checkpoint(id SessionID, kind model.VersionKind, message string) error {
	ms, err := m.Get(id)
	if err != nil {
		return err
	}

	snap := ms.Store.Snapshot()
	m.checkpoint(ms.ChapterID, snap, kind, message)
	return nil
}

// Close flushes any unsaved delta synchronously, cancels the pending
// debounce, and forgets the session. When the flush fails the session stays
// registered with its dirty draft intact, so the caller can retry the close
// or keep editing; the draft is never dropped on persistence failure.
func (m *Manager) Close(id SessionID) error {
	m.mu.RLock()
	ms, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	ms.saveMu.Lock()
	flushErr := ms.sched.FlushOnTeardown(ms.Store.Snapshot(), ms.Store.LastSaved(), func(snap Snapshot) error {
		if err := m.persist(ms.ChapterID, snap); err != nil {
			ms.Store.FailSave()
			return &PersistenceError{ChapterID: ms.ChapterID, Err: err}
		}
		ms.Store.MarkSavedAs(snap)
		return nil
	})
	ms.saveMu.Unlock()

	if flushErr != nil {
		return flushErr
	}

	ms.sched.Cancel()

	m.mu.Lock()
	delete(m.sessions, id)
	if cur, ok := m.byChapter[ms.ChapterID]; ok && cur == ms {
		delete(m.byChapter, ms.ChapterID)
	}
	m.mu.Unlock()

	m.log.Debug().
		Str("session_id", string(ms.ID)).
		Str("chapter_id", string(ms.ChapterID)).
		Msg("Editor session closed")

	return flushErr
}

// CloseAll tears down every live session, flushing unsaved drafts. Used on
// server shutdown.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]SessionID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Close(id); err != nil && err != ErrSessionNotFound {
			m.log.Error().Err(err).Msg("Flush failed during shutdown")
		}
	}
}

func (m *Manager) scheduleSave(ms *ManagedSession) {
	ms.sched.ScheduleSave(func() {
		if err := m.save(ms); err != nil {
			m.log.Error().Err(err).
				Str("chapter_id", string(ms.ChapterID)).
				Msg("Auto-save failed")
		}
	}, m.opts.AutosaveDelay)
}

// save issues one serialized persistence call. MarkSavedAs runs only after
// the persist call was issued, never before, so dirty data is never marked
// clean prematurely. On failure the session keeps its draft and reports a
// retryable Error status.
func (m *Manager) save(ms *ManagedSession) error {
	ms.saveMu.Lock()
	defer ms.saveMu.Unlock()

	if !ms.Store.HasUnsavedChanges() {
		return nil
	}

	snap := ms.Store.Snapshot()
	ms.Store.BeginSave()

	if err := m.persist(ms.ChapterID, snap); err != nil {
		ms.Store.FailSave()
		return &PersistenceError{ChapterID: ms.ChapterID, Err: err}
	}

	ms.Store.MarkSavedAs(snap)
	return nil
}
