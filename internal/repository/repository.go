// Package repository provides chapter and novel persistence backends.
package repository

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/inkwell-app/inkwell/internal/model"
)

var errReadOnly = errors.New("repository is read-only")

type ChapterRepository interface {
	Init()
	GetChapters() ([]model.Chapter, map[string]*model.Chapter, error)
	GetChapterList(novelID model.NovelID) []model.Chapter
	ReadChapter(id any) (*model.Chapter, error)
	NewChapter(novelID model.NovelID) *model.Chapter
	SaveChapter(chapter *model.Chapter) error
	SetChapterContent(chapter *model.Chapter) error
	DeleteChapter(id model.ChapterID) error
	ReloadChapters()

	// SetReloadNotifier sets a function that will be called when a chapter
	// changes underneath the cache.
	SetReloadNotifier(notifier func(model.ChapterID))
}

var repoLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}
