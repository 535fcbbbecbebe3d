// Package analytics derives writing statistics from chapters and their
// version history.
package analytics

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/model"
)

var statsLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	statsLogger = l
}

// ChapterStats summarizes a single chapter draft.
type ChapterStats struct {
	ChapterID model.ChapterID `json:"chapter_id"`
	Title     string          `json:"title"`

	WordCount      int `json:"word_count"`
	CharacterCount int `json:"character_count"`
}

// NovelStats aggregates chapter stats plus the per-day writing history
// reconstructed from version checkpoints.
type NovelStats struct {
	NovelID model.NovelID `json:"novel_id"`

	TotalWords      int            `json:"total_words"`
	TotalCharacters int            `json:"total_characters"`
	Chapters        []ChapterStats `json:"chapters"`

	// WordsPerDay maps an ISO date to the net words written that day,
	// derived from consecutive version word counts.
	WordsPerDay map[string]int `json:"words_per_day"`
}

func CountWords(content string) int {
	return len(strings.Fields(content))
}

func CountCharacters(content string) int {
	return utf8.RuneCountInString(content)
}

// Collector reads version rows to reconstruct writing history.
type Collector struct {
	db db.DB
}

func NewCollector(db db.DB) *Collector {
	return &Collector{db: db}
}

// NovelStats computes totals over the given chapters and merges in the
// per-day history of every chapter's versions.
func (c *Collector) NovelStats(novelID model.NovelID, chapters []model.Chapter) (*NovelStats, error) {
	stats := &NovelStats{
		NovelID:     novelID,
		Chapters:    make([]ChapterStats, 0, len(chapters)),
		WordsPerDay: make(map[string]int),
	}

	for _, chapter := range chapters {
		content := string(chapter.Markdown)
		cs := ChapterStats{
			ChapterID:      chapter.ID,
			Title:          chapter.DisplayTitle(),
			WordCount:      CountWords(content),
			CharacterCount: CountCharacters(content),
		}
		stats.Chapters = append(stats.Chapters, cs)
		stats.TotalWords += cs.WordCount
		stats.TotalCharacters += cs.CharacterCount

		perDay, err := c.wordsPerDay(chapter.ID)
		if err != nil {
			return nil, err
		}
		for day, words := range perDay {
			stats.WordsPerDay[day] += words
		}
	}

	return stats, nil
}

// wordsPerDay walks a chapter's versions oldest-first and attributes each
// word count delta to the day the version was checkpointed. Deletions count
// as zero rather than negative progress.
func (c *Collector) wordsPerDay(chapterID model.ChapterID) (map[string]int, error) {
	rows, err := c.db.Query(
		`SELECT word_count, created_at FROM versions WHERE chapter_id = ? ORDER BY created_at ASC`,
		chapterID,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying version history: %w", err)
	}
	defer rows.Close()

	perDay := make(map[string]int)
	prev := 0
	for rows.Next() {
		var wordCount int
		var createdAt time.Time
		if err := rows.Scan(&wordCount, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning version row: %w", err)
		}

		delta := wordCount - prev
		if delta > 0 {
			perDay[createdAt.UTC().Format("2006-01-02")] += delta
		}
		prev = wordCount
	}

	return perDay, rows.Err()
}
