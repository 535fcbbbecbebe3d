package repository

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/inkwell-app/inkwell/internal/cache"
	"github.com/inkwell-app/inkwell/internal/model"
	"github.com/inkwell-app/inkwell/internal/util"
)

// FSChapterRepository reads a manuscript directory of .md files as chapters
// of a single novel. It is a read-only backend used to preview or import
// external manuscripts; writes are rejected.
type FSChapterRepository struct { // implements ChapterRepository
	manuscriptPath string
	novelID        model.NovelID

	chaptersCache *cache.Cache[string, *model.Chapter]

	// sortedMu guards chaptersCacheSorted against the reload goroutine.
	sortedMu            sync.RWMutex
	chaptersCacheSorted []model.Chapter

	reloadNotifier func(model.ChapterID)
}

func NewFSChapterRepository(manuscriptPath string, novelID model.NovelID) *FSChapterRepository {
	return &FSChapterRepository{
		manuscriptPath: manuscriptPath,
		novelID:        novelID,
		chaptersCache:  cache.NewCache[string, *model.Chapter](),
	}
}

func (r *FSChapterRepository) SetReloadNotifier(notifier func(model.ChapterID)) {
	r.reloadNotifier = notifier
}

func (r *FSChapterRepository) notifyChapterReload(chapterID model.ChapterID) {
	if r.reloadNotifier != nil {
		r.reloadNotifier(chapterID)
	}
}

func (r *FSChapterRepository) Init() {
	chapters, chapterMap, err := r.GetChapters()
	if err != nil {
		repoLogger.Fatal().Err(err).Msg("Error initializing chapters")
	}

	r.sortedMu.Lock()
	r.chaptersCacheSorted = chapters
	r.sortedMu.Unlock()
	r.chaptersCache.SetTo(chapterMap)

	go r.ReloadChapters()
}

func (r *FSChapterRepository) GetChapterList(novelID model.NovelID) []model.Chapter {
	if novelID != r.novelID {
		return nil
	}
	r.sortedMu.RLock()
	defer r.sortedMu.RUnlock()
	return r.chaptersCacheSorted
}

func (r *FSChapterRepository) GetChapters() ([]model.Chapter, map[string]*model.Chapter, error) {
	entries, err := os.ReadDir(r.manuscriptPath)
	if err != nil {
		return nil, nil, err
	}

	var chapters []model.Chapter
	chaptersMap := make(map[string]*model.Chapter)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".md") {
			name := strings.TrimSuffix(entry.Name(), ".md")

			mdContent, err := os.ReadFile(filepath.Join(r.manuscriptPath, name+".md"))
			if err != nil {
				return nil, nil, err
			}

			fileInfo, err := entry.Info()
			if err != nil {
				return nil, nil, err
			}

			chapter := model.Chapter{
				ID:            model.ChapterID(util.ContentHashString(name)),
				NovelID:       r.novelID,
				Title:         name,
				Markdown:      mdContent,
				MDContentHash: util.ContentHash(mdContent),
				ModifiedDate:  fileInfo.ModTime(),
			}

			// Front matter overrides the filename-derived metadata.
			if meta, err := util.GetFrontMatter(mdContent); err == nil {
				if meta.Title != "" {
					chapter.Title = meta.Title
				}
				chapter.Summary = meta.Summary
				chapter.Order = meta.Order
			}

			chapters = append(chapters, chapter)
			chaptersMap[string(chapter.ID)] = &chapter
		}
	}

	slices.SortStableFunc(chapters, func(a, b model.Chapter) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return strings.Compare(a.Title, b.Title)
	})

	return chapters, chaptersMap, nil
}

func (r *FSChapterRepository) ReadChapter(id any) (*model.Chapter, error) {
	if chapter, ok := r.chaptersCache.Get(id.(string)); ok && chapter.Markdown != nil {
		return chapter, nil
	}
	return nil, os.ErrNotExist
}

func (r *FSChapterRepository) ReloadChapters() {
	for {
		chapters, chapterMap, err := r.GetChapters()
		if err != nil {
			repoLogger.Error().Err(err).Msg("Error reloading chapters")
		} else {
			r.sortedMu.RLock()
			cached := r.chaptersCacheSorted
			r.sortedMu.RUnlock()

			for _, chapter := range cached {
				if newChapter, ok := chapterMap[string(chapter.ID)]; ok {
					if newChapter.MDContentHash != chapter.MDContentHash {
						repoLogger.Info().
							Str("chapter_id", string(chapter.ID)).
							Str("title", chapter.Title).
							Msg("Reloading chapter")
						go r.notifyChapterReload(chapter.ID)
					}
				}
			}

			r.sortedMu.Lock()
			r.chaptersCacheSorted = chapters
			r.sortedMu.Unlock()
			r.chaptersCache.SetTo(chapterMap)
		}
		time.Sleep(1 * time.Second)
	}
}

func (r *FSChapterRepository) NewChapter(novelID model.NovelID) *model.Chapter {
	return &model.Chapter{NovelID: novelID}
}

func (r *FSChapterRepository) SetChapterContent(chapter *model.Chapter) error {
	return errReadOnly
}

func (r *FSChapterRepository) SaveChapter(chapter *model.Chapter) error {
	return errReadOnly
}

func (r *FSChapterRepository) DeleteChapter(id model.ChapterID) error {
	return errReadOnly
}
