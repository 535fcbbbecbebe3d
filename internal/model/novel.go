// Package model defines core data structures and types for the writing application.
package model

import (
	"time"
)

type NovelID string

type ChapterID string

type VersionID string

type UserID string

type Novel struct {
	ID NovelID

	Title       string
	Description string
	Author      string

	CreatedDate  time.Time
	ModifiedDate time.Time

	Owner UserID
}

// Chapter is the editable unit of a novel. Markdown holds the raw draft
// content; MDContentHash is derived from the stored (compressed) bytes and
// used for cache busting and change detection.
type Chapter struct {
	ID      ChapterID
	NovelID NovelID

	Title   string
	Summary string
	Order   int

	Markdown      []byte
	MDContentHash string

	CreatedDate  time.Time
	ModifiedDate time.Time

	Owner UserID
}

func (c *Chapter) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "Chapter " + c.CreatedDate.Format("2006-01-02")
}
