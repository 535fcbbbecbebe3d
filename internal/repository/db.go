package repository

import (
	"database/sql"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-app/inkwell/internal/cache"
	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/model"
	"github.com/inkwell-app/inkwell/internal/util"
	"github.com/inkwell-app/inkwell/internal/util/compression"
)

type DBChapterRepository struct { // implements ChapterRepository
	chaptersCache *cache.Cache[string, *model.Chapter]

	// sortedMu guards chaptersCacheSorted: handler goroutines mutate it on
	// writes while the reload goroutine reads and replaces it.
	sortedMu            sync.RWMutex
	chaptersCacheSorted []model.Chapter

	reloadNotifier   func(model.ChapterID)
	lastModifiedTime *time.Time // Track the latest modification time

	db         db.DB
	compressor compression.Compressor
}

func NewDBChapterRepository(db db.DB) *DBChapterRepository {
	return &DBChapterRepository{
		chaptersCache: cache.NewCache[string, *model.Chapter](),

		db: db,

		compressor: compression.ZstdCompressor{},
	}
}

// SetCompressor overrides the BLOB compression algorithm. Must be called
// before any reads or writes; mixing algorithms in one database makes old
// rows unreadable.
func (r *DBChapterRepository) SetCompressor(c compression.Compressor) {
	r.compressor = c
}

func (r *DBChapterRepository) Init() {
	chapters, chapterMap, err := r.GetChapters()
	if err != nil {
		repoLogger.Fatal().Err(err).Msg(config.ErrInitializingChapters)
	}

	r.sortedMu.Lock()
	r.chaptersCacheSorted = chapters
	r.sortedMu.Unlock()
	r.chaptersCache.SetTo(chapterMap)

	go r.ReloadChapters()
}

func (r *DBChapterRepository) GetLatestModifiedTime() (*time.Time, error) {
	var latestTimeStr sql.NullString
	row := r.db.Get().QueryRow(`SELECT MAX(modified_at) FROM chapters`)
	err := row.Scan(&latestTimeStr)
	if err != nil {
		return nil, fmt.Errorf("error scanning latest modified time: %w", err)
	}

	if !latestTimeStr.Valid {
		return nil, nil // It was NULL, so no chapters or no valid timestamps.
	}

	// The go-sqlite3 driver returns a string for MAX(), so we must parse it.
	// It can be in a format with a space separator.
	timeFormats := []string{
		"2006-01-02 15:04:05.999999999-07:00", // Space separator with timezone
		time.RFC3339Nano,                      // 'T' separator with timezone
		time.RFC3339,                          // 'T' separator, no nanos
	}

	var latestTime time.Time
	var parseErr error
	for _, format := range timeFormats {
		latestTime, parseErr = time.Parse(format, latestTimeStr.String)
		if parseErr == nil {
			return &latestTime, nil
		}
	}

	return nil, fmt.Errorf("error parsing latest modified time '%s' with any known format: %w", latestTimeStr.String, parseErr)
}

func (r *DBChapterRepository) GetChapters() ([]model.Chapter, map[string]*model.Chapter, error) {
	rows, err := r.db.Query(`SELECT id, novel_id, title, summary, sort_order, content, md_content_hash, created_at, modified_at, user_id FROM chapters`)
	if err != nil {
		return nil, nil, fmt.Errorf("error querying chapters: %w", err)
	}
	defer rows.Close()

	chapters := make([]model.Chapter, 0)
	chapterMap := make(map[string]*model.Chapter)
	var latestModTime *time.Time

	for rows.Next() {
		var chapter model.Chapter
		var compressed []byte

		err := rows.Scan(&chapter.ID, &chapter.NovelID, &chapter.Title, &chapter.Summary, &chapter.Order,
			&compressed, &chapter.MDContentHash, &chapter.CreatedDate, &chapter.ModifiedDate, &chapter.Owner)
		if err != nil {
			return nil, nil, fmt.Errorf("error scanning chapter: %w", err)
		}

		// Track the latest modification time
		if latestModTime == nil || chapter.ModifiedDate.After(*latestModTime) {
			latestModTime = &chapter.ModifiedDate
		}

		// Decompress the content
		content, err := r.compressor.Decompress(compressed)
		if err != nil {
			return nil, nil, fmt.Errorf("error decompressing content: %w", err)
		}
		chapter.Markdown = content

		chapters = append(chapters, chapter)
		chapterMap[string(chapter.ID)] = &chapter
	}

	// Update our tracked modification time
	r.lastModifiedTime = latestModTime

	// Sort by novel, then by the author's chapter ordering
	slices.SortStableFunc(chapters, func(a, b model.Chapter) int {
		if a.NovelID != b.NovelID {
			if a.NovelID < b.NovelID {
				return -1
			}
			return 1
		}
		return a.Order - b.Order
	})

	return chapters, chapterMap, nil
}

func (r *DBChapterRepository) GetChapterList(novelID model.NovelID) []model.Chapter {
	r.sortedMu.RLock()
	defer r.sortedMu.RUnlock()

	chapters := make([]model.Chapter, 0)
	for _, chapter := range r.chaptersCacheSorted {
		if chapter.NovelID == novelID {
			chapters = append(chapters, chapter)
		}
	}
	return chapters
}

func (r *DBChapterRepository) ReadChapter(id any) (*model.Chapter, error) {
	chapter, ok := r.chaptersCache.Get(id.(string))
	if !ok {
		return nil, fmt.Errorf("chapter not found: %s", id)
	}
	return chapter, nil
}

func (r *DBChapterRepository) ReloadChapters() {
	sleepFunc := func() {
		time.Sleep(10 * time.Second)
	}

	for {
		// First, do a lightweight check to see if anything has changed
		latestTime, err := r.GetLatestModifiedTime()
		if err != nil {
			repoLogger.Error().Err(err).Msg("Error checking latest modification time")
			sleepFunc()
			continue
		}

		// If we have a cached time and nothing has changed, skip
		if r.lastModifiedTime != nil && latestTime != nil && !latestTime.After(*r.lastModifiedTime) {
			repoLogger.Debug().Msg("No chapters modified, skipping reload")
			sleepFunc()
			continue
		}

		repoLogger.Debug().Msg("Chapters may have changed, performing full reload")

		// Something changed, do the full reload
		chapters, chapterMap, err := r.GetChapters()
		if err != nil {
			repoLogger.Error().Err(err).Msg("Error reloading chapters")
		} else {
			// Check if any chapters have changed by comparing content hashes
			hasChanges := false

			r.sortedMu.RLock()
			cachedChapters := make(map[string]model.Chapter, len(r.chaptersCacheSorted))
			for _, cached := range r.chaptersCacheSorted {
				cachedChapters[string(cached.ID)] = cached
			}
			r.sortedMu.RUnlock()

			// Check for new or modified chapters
			for _, newChapter := range chapters {
				if cachedChapter, exists := cachedChapters[string(newChapter.ID)]; exists {
					if newChapter.MDContentHash != cachedChapter.MDContentHash {
						hasChanges = true
						repoLogger.Info().
							Str("chapter_id", string(newChapter.ID)).
							Str("title", newChapter.Title).
							Msg("Chapter content changed, reloading")
						if r.reloadNotifier != nil {
							go r.reloadNotifier(newChapter.ID)
						}
					}
				} else {
					hasChanges = true
					repoLogger.Info().
						Str("chapter_id", string(newChapter.ID)).
						Str("title", newChapter.Title).
						Msg("New chapter detected")
				}
			}

			// Check for deleted chapters
			if len(chapters) != len(cachedChapters) {
				hasChanges = true
				repoLogger.Info().Msg("Number of chapters changed")
			}

			if hasChanges {
				repoLogger.Info().Msg("Chapters have changed, updating cache")
				r.sortedMu.Lock()
				r.chaptersCacheSorted = chapters
				r.sortedMu.Unlock()
				r.chaptersCache.SetTo(chapterMap)
			}
		}

		sleepFunc()
	}
}

func (r *DBChapterRepository) SetReloadNotifier(notifier func(model.ChapterID)) {
	r.reloadNotifier = notifier
}

func (r *DBChapterRepository) NewChapter(novelID model.NovelID) *model.Chapter {
	now := time.Now().UTC()

	return &model.Chapter{
		ID:      model.ChapterID(uuid.New().String()),
		NovelID: novelID,

		CreatedDate:  now,
		ModifiedDate: now,
	}
}

func (r *DBChapterRepository) SetChapterContent(chapter *model.Chapter) error {
	// Compress the content
	compressed, err := r.compressor.Compress(chapter.Markdown)
	if err != nil {
		return fmt.Errorf("error compressing content: %w", err)
	}

	// Calculate the content hash for the compressed content
	chapter.MDContentHash = util.ContentHash(compressed)
	chapter.ModifiedDate = time.Now().UTC()

	res, err := r.db.Exec(
		`UPDATE chapters SET title = ?, summary = ?, sort_order = ?, content = ?, md_content_hash = ?, modified_at = ? WHERE id = ?`,
		chapter.Title, chapter.Summary, chapter.Order, compressed, chapter.MDContentHash, chapter.ModifiedDate, chapter.ID,
	)

	if err != nil {
		return fmt.Errorf("error saving chapter: %w", err)
	}

	// Keep the cache coherent with what we just wrote instead of waiting
	// for the next reload poll.
	r.chaptersCache.Set(string(chapter.ID), chapter)
	r.sortedMu.Lock()
	for i := range r.chaptersCacheSorted {
		if r.chaptersCacheSorted[i].ID == chapter.ID {
			r.chaptersCacheSorted[i] = *chapter
			break
		}
	}
	r.sortedMu.Unlock()

	repoLogger.Debug().Interface("result", res).Msg("Chapter content set")

	return nil
}

func (r *DBChapterRepository) SaveChapter(chapter *model.Chapter) error {
	// Compress the content
	compressed, err := r.compressor.Compress(chapter.Markdown)
	if err != nil {
		return fmt.Errorf("error compressing content: %w", err)
	}

	// Calculate the content hash for the compressed content
	chapter.MDContentHash = util.ContentHash(compressed)

	res, err := r.db.Exec(
		`INSERT INTO chapters (id, novel_id, title, summary, sort_order, content, md_content_hash, created_at, modified_at, user_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chapter.ID, chapter.NovelID, chapter.Title, chapter.Summary, chapter.Order, compressed,
		chapter.MDContentHash, chapter.CreatedDate, chapter.ModifiedDate, chapter.Owner,
	)

	if err != nil {
		return fmt.Errorf("error saving chapter: %w", err)
	}

	r.chaptersCache.Set(string(chapter.ID), chapter)
	r.sortedMu.Lock()
	r.chaptersCacheSorted = append(r.chaptersCacheSorted, *chapter)
	r.sortedMu.Unlock()

	repoLogger.Debug().Interface("result", res).Msg("Chapter saved")

	return nil
}

func (r *DBChapterRepository) DeleteChapter(id model.ChapterID) error {
	if _, err := r.db.Exec(`DELETE FROM versions WHERE chapter_id = ?`, id); err != nil {
		return fmt.Errorf("error deleting chapter versions: %w", err)
	}
	if _, err := r.db.Exec(`DELETE FROM chapters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("error deleting chapter: %w", err)
	}

	r.chaptersCache.Delete(string(id))
	r.sortedMu.Lock()
	r.chaptersCacheSorted = slices.DeleteFunc(r.chaptersCacheSorted, func(c model.Chapter) bool {
		return c.ID == id
	})
	r.sortedMu.Unlock()

	return nil
}
