// Package version stores and restores named snapshots of chapter drafts.
package version

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/model"
	"github.com/inkwell-app/inkwell/internal/util/compression"
)

var versionLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	versionLogger = l
}

// Checkpointer persists chapter versions as compressed rows and prunes the
// per-chapter history down to a retention limit.
type Checkpointer struct {
	db         db.DB
	compressor compression.Compressor
	retention  int
}

func NewCheckpointer(db db.DB, retention int) *Checkpointer {
	return &Checkpointer{
		db:         db,
		compressor: compression.ZstdCompressor{},
		retention:  retention,
	}
}

// SetCompressor overrides the version content compression. Must match the
// algorithm the existing rows were written with.
func (c *Checkpointer) SetCompressor(comp compression.Compressor) {
	c.compressor = comp
}

// Checkpoint records a new version of the chapter and prunes old automatic
// versions past the retention limit. Manual and restore versions are never
// pruned.
func (c *Checkpointer) Checkpoint(chapterID model.ChapterID, summary, content string, kind model.VersionKind, message string) (*model.Version, error) {
	compressed, err := c.compressor.Compress([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("error compressing version content: %w", err)
	}

	v := &model.Version{
		ID:        model.VersionID(uuid.New().String()),
		ChapterID: chapterID,

		Summary: summary,
		Content: content,

		Kind:    kind,
		Message: message,

		WordCount: len(strings.Fields(content)),

		CreatedDate: time.Now().UTC(),
	}

	_, err = c.db.Exec(
		`INSERT INTO versions (id, chapter_id, summary, content, kind, message, word_count, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ChapterID, v.Summary, compressed, v.Kind, v.Message, v.WordCount, v.CreatedDate,
	)
	if err != nil {
		return nil, fmt.Errorf("error saving version: %w", err)
	}

	if err := c.prune(chapterID); err != nil {
		versionLogger.Error().Err(err).
			Str("chapter_id", string(chapterID)).
			Msg("Error pruning versions")
	}

	versionLogger.Debug().
		Str("chapter_id", string(chapterID)).
		Str("kind", string(kind)).
		Int("word_count", v.WordCount).
		Msg("Version checkpointed")

	return v, nil
}

// prune deletes the oldest automatic versions beyond the retention limit.
func (c *Checkpointer) prune(chapterID model.ChapterID) error {
	if c.retention <= 0 {
		return nil
	}

	_, err := c.db.Exec(
		`DELETE FROM versions WHERE chapter_id = ? AND kind = ? AND id NOT IN (
			SELECT id FROM versions WHERE chapter_id = ? AND kind = ?
			ORDER BY created_at DESC LIMIT ?
		)`,
		chapterID, model.VersionAuto, chapterID, model.VersionAuto, c.retention,
	)
	return err
}

// List returns the version history for a chapter, newest first, without
// content. Use Get to load a single version's content.
func (c *Checkpointer) List(chapterID model.ChapterID) ([]model.Version, error) {
	rows, err := c.db.Query(
		`SELECT id, chapter_id, summary, kind, message, word_count, created_at FROM versions WHERE chapter_id = ? ORDER BY created_at DESC`,
		chapterID,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying versions: %w", err)
	}
	defer rows.Close()

	versions := make([]model.Version, 0)
	for rows.Next() {
		var v model.Version
		err := rows.Scan(&v.ID, &v.ChapterID, &v.Summary, &v.Kind, &v.Message, &v.WordCount, &v.CreatedDate)
		if err != nil {
			return nil, fmt.Errorf("error scanning version: %w", err)
		}
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

// Get loads a single version including its decompressed content.
func (c *Checkpointer) Get(id model.VersionID) (*model.Version, error) {
	var v model.Version
	var compressed []byte

	row := c.db.Get().QueryRow(
		`SELECT id, chapter_id, summary, content, kind, message, word_count, created_at FROM versions WHERE id = ?`,
		id,
	)
	err := row.Scan(&v.ID, &v.ChapterID, &v.Summary, &compressed, &v.Kind, &v.Message, &v.WordCount, &v.CreatedDate)
	if err != nil {
		return nil, fmt.Errorf("version not found: %s: %w", id, err)
	}

	content, err := c.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("error decompressing version content: %w", err)
	}
	v.Content = string(content)

	return &v, nil
}

// Restore returns the snapshot stored in a version and records a restore
// marker so the history shows when the draft was rolled back.
func (c *Checkpointer) Restore(id model.VersionID) (*model.Version, error) {
	v, err := c.Get(id)
	if err != nil {
		return nil, err
	}

	marker := fmt.Sprintf("restored version from %s", v.CreatedDate.Format(time.RFC3339))
	if _, err := c.Checkpoint(v.ChapterID, v.Summary, v.Content, model.VersionRestore, marker); err != nil {
		return nil, err
	}

	return v, nil
}
