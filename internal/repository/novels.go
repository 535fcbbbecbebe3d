package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/model"
)

// NovelRepository stores novel metadata. Chapter content lives in the
// chapter repository; this table only carries the shelf-level fields.
type NovelRepository struct {
	db db.DB
}

func NewNovelRepository(db db.DB) *NovelRepository {
	return &NovelRepository{db: db}
}

func (r *NovelRepository) NewNovel(owner model.UserID) *model.Novel {
	now := time.Now().UTC()

	return &model.Novel{
		ID:    model.NovelID(uuid.New().String()),
		Owner: owner,

		CreatedDate:  now,
		ModifiedDate: now,
	}
}

func (r *NovelRepository) GetNovels(owner model.UserID) ([]model.Novel, error) {
	rows, err := r.db.Query(
		`SELECT id, title, description, author, created_at, modified_at, user_id FROM novels WHERE user_id = ? ORDER BY modified_at DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying novels: %w", err)
	}
	defer rows.Close()

	novels := make([]model.Novel, 0)
	for rows.Next() {
		var novel model.Novel
		err := rows.Scan(&novel.ID, &novel.Title, &novel.Description, &novel.Author,
			&novel.CreatedDate, &novel.ModifiedDate, &novel.Owner)
		if err != nil {
			return nil, fmt.Errorf("error scanning novel: %w", err)
		}
		novels = append(novels, novel)
	}

	return novels, rows.Err()
}

func (r *NovelRepository) ReadNovel(id model.NovelID) (*model.Novel, error) {
	var novel model.Novel
	row := r.db.Get().QueryRow(
		`SELECT id, title, description, author, created_at, modified_at, user_id FROM novels WHERE id = ?`,
		id,
	)
	err := row.Scan(&novel.ID, &novel.Title, &novel.Description, &novel.Author,
		&novel.CreatedDate, &novel.ModifiedDate, &novel.Owner)
	if err != nil {
		return nil, fmt.Errorf("novel not found: %s: %w", id, err)
	}
	return &novel, nil
}

func (r *NovelRepository) SaveNovel(novel *model.Novel) error {
	_, err := r.db.Exec(
		`INSERT INTO novels (id, title, description, author, created_at, modified_at, user_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		novel.ID, novel.Title, novel.Description, novel.Author, novel.CreatedDate, novel.ModifiedDate, novel.Owner,
	)
	if err != nil {
		return fmt.Errorf("error saving novel: %w", err)
	}
	return nil
}

func (r *NovelRepository) UpdateNovel(novel *model.Novel) error {
	novel.ModifiedDate = time.Now().UTC()

	_, err := r.db.Exec(
		`UPDATE novels SET title = ?, description = ?, author = ?, modified_at = ? WHERE id = ?`,
		novel.Title, novel.Description, novel.Author, novel.ModifiedDate, novel.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating novel: %w", err)
	}
	return nil
}

// TouchNovel bumps the novel's modification time, used when a chapter save
// should surface the novel at the top of the shelf.
func (r *NovelRepository) TouchNovel(id model.NovelID) error {
	_, err := r.db.Exec(`UPDATE novels SET modified_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

func (r *NovelRepository) DeleteNovel(id model.NovelID) error {
	if _, err := r.db.Exec(`DELETE FROM versions WHERE chapter_id IN (SELECT id FROM chapters WHERE novel_id = ?)`, id); err != nil {
		return fmt.Errorf("error deleting novel versions: %w", err)
	}
	if _, err := r.db.Exec(`DELETE FROM chapters WHERE novel_id = ?`, id); err != nil {
		return fmt.Errorf("error deleting novel chapters: %w", err)
	}
	if _, err := r.db.Exec(`DELETE FROM novels WHERE id = ?`, id); err != nil {
		return fmt.Errorf("error deleting novel: %w", err)
	}
	return nil
}
