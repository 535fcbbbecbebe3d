// Package editor implements the server-side chapter editing session: a
// bounded undo/redo history over the draft content, a draft store with
// dirty tracking, and a debounced auto-save scheduler.
package editor

// DefaultMaxHistory bounds the undo stack when no explicit bound is configured.
const DefaultMaxHistory = 50

// HistoryBuffer is a bounded linear undo/redo stack over a single text
// value. Oldest entries are evicted silently once the bound is exceeded;
// Evictions exposes how often that happened.
//
// HistoryBuffer is not safe for concurrent use; Session guards it.
type HistoryBuffer struct {
	past       []string
	present    string
	future     []string
	maxHistory int
	evictions  int
}

func NewHistoryBuffer(initial string, maxHistory int) *HistoryBuffer {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &HistoryBuffer{
		present:    initial,
		maxHistory: maxHistory,
	}
}

// Push records a new present value. Pushing the current value again is a
// no-op so repeated identical updates never grow history. Any redo entries
// are invalidated.
func (h *HistoryBuffer) Push(value string) {
	if value == h.present {
		return
	}

	h.pushPast(h.present)
	h.present = value
	h.future = h.future[:0]
}

// Undo steps back one entry and returns the new present value. At the
// bottom of the stack it is a no-op.
func (h *HistoryBuffer) Undo() string {
	if len(h.past) == 0 {
		return h.present
	}

	last := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append([]string{h.present}, h.future...)
	h.present = last
	return h.present
}

// Redo steps forward one entry and returns the new present value. With no
// redo entries it is a no-op.
func (h *HistoryBuffer) Redo() string {
	if len(h.future) == 0 {
		return h.present
	}

	next := h.future[0]
	h.future = h.future[1:]
	h.pushPast(h.present)
	h.present = next
	return h.present
}

// Reset clears both stacks and sets a new present value. Invoked whenever
// the editing target changes.
func (h *HistoryBuffer) Reset(initial string) {
	h.past = h.past[:0]
	h.future = h.future[:0]
	h.present = initial
}

func (h *HistoryBuffer) Present() string {
	return h.present
}

func (h *HistoryBuffer) CanUndo() bool {
	return len(h.past) > 0
}

func (h *HistoryBuffer) CanRedo() bool {
	return len(h.future) > 0
}

// Depth returns the number of undo entries currently held.
func (h *HistoryBuffer) Depth() int {
	return len(h.past)
}

// Evictions returns how many entries were dropped from the head of the
// undo stack to honor the bound.
func (h *HistoryBuffer) Evictions() int {
	return h.evictions
}

func (h *HistoryBuffer) pushPast(value string) {
	h.past = append(h.past, value)
	if len(h.past) > h.maxHistory {
		n := len(h.past) - h.maxHistory
		h.past = append(h.past[:0], h.past[n:]...)
		h.evictions += n
	}
}
