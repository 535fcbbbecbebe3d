package editor

import (
	"errors"
	"fmt"

	"github.com/inkwell-app/inkwell/internal/model"
)

var ErrSessionNotFound = errors.New("editor session not found")

// PersistenceError wraps a failure of the host persistence sink. The
// session keeps its dirty draft and surfaces a retryable Error status.
type PersistenceError struct {
	ChapterID model.ChapterID
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting chapter %s: %v", e.ChapterID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
