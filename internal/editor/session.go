package editor

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// SaveStatus is the explicit save state of a session. The UI reads it
// directly instead of inferring an in-flight save from the dirty flag.
type SaveStatus string

const (
	StatusClean  SaveStatus = "clean"
	StatusDirty  SaveStatus = "dirty"
	StatusSaving SaveStatus = "saving"
	StatusError  SaveStatus = "error"
)

// Snapshot is an immutable copy of the editable draft fields.
type Snapshot struct {
	Summary string
	Content string
}

// Session is the single source of truth for the active chapter draft.
// Content edits are undo-tracked; the summary is last-write-wins. The
// session owns its draft exclusively for the lifetime of one chapter
// editing session and is replaced wholesale on chapter switch.
type Session struct {
	mu sync.Mutex

	summary string
	content string

	lastSavedSummary string
	lastSavedContent string

	history *HistoryBuffer
	status  SaveStatus
}

func NewSession(maxHistory int) *Session {
	return &Session{
		history: NewHistoryBuffer("", maxHistory),
		status:  StatusClean,
	}
}

// SetChapter replaces the draft wholesale: history is reset to the new
// content and the last-saved snapshot matches the draft, so the session
// starts clean.
func (s *Session) SetChapter(summary, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary = summary
	s.content = content
	s.lastSavedSummary = summary
	s.lastSavedContent = content
	s.history.Reset(content)
	s.status = StatusClean
}

func (s *Session) UpdateSummary(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary = value
	s.recomputeStatus()
}

func (s *Session) UpdateContent(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.content = value
	s.history.Push(value)
	s.recomputeStatus()
}

// Undo reverts the content to the previous history entry and returns the
// new content. A no-op at the bottom of the stack.
func (s *Session) Undo() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.content = s.history.Undo()
	s.recomputeStatus()
	return s.content
}

func (s *Session) Redo() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.content = s.history.Redo()
	s.recomputeStatus()
	return s.content
}

// MarkSaved records the current draft as persisted. Callers must only
// invoke this after the persistence call has been issued.
func (s *Session) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSavedSummary = s.summary
	s.lastSavedContent = s.content
	s.status = StatusClean
}

// MarkSavedAs records the given snapshot as persisted. The draft may have
// moved on while the save was in flight, in which case the session comes
// out dirty. The save is over either way, so the status is set directly
// rather than derived: recomputeStatus would leave an in-flight Saving
// state in place.
func (s *Session) MarkSavedAs(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSavedSummary = snap.Summary
	s.lastSavedContent = snap.Content
	if s.dirty() {
		s.status = StatusDirty
	} else {
		s.status = StatusClean
	}
}

// BeginSave transitions the session into the Saving state.
func (s *Session) BeginSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusSaving
}

// FailSave transitions the session into the Error state. The dirty draft
// is retained; user data is never dropped on persistence failure.
func (s *Session) FailSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusError
}

func (s *Session) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty()
}

func (s *Session) Status() SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Summary: s.summary, Content: s.content}
}

func (s *Session) LastSaved() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Summary: s.lastSavedSummary, Content: s.lastSavedContent}
}

// WordCount returns the whitespace-delimited token count of the content,
// with empty tokens excluded.
func (s *Session) WordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(strings.Fields(s.content))
}

// CharacterCount returns the rune count of the content.
func (s *Session) CharacterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return utf8.RuneCountInString(s.content)
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}

// HistoryEvictions exposes the undo buffer's eviction counter.
func (s *Session) HistoryEvictions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Evictions()
}

// HistoryDepth exposes the undo buffer's current depth.
func (s *Session) HistoryDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Depth()
}

func (s *Session) dirty() bool {
	return s.summary != s.lastSavedSummary || s.content != s.lastSavedContent
}

// recomputeStatus derives Clean/Dirty from the last-saved snapshot. A new
// edit clears a previous Error so the next auto-save retries.
func (s *Session) recomputeStatus() {
	if s.dirty() {
		if s.status != StatusSaving {
			s.status = StatusDirty
		}
		return
	}
	s.status = StatusClean
}
