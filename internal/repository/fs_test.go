package repository

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/inkwell-app/inkwell/internal/model"
	"github.com/inkwell-app/inkwell/internal/util"
)

func writeManuscript(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write manuscript file: %v", err)
	}
}

func TestFSChapterRepository(t *testing.T) {
	dir := t.TempDir()
	novelID := model.NovelID("manuscript")

	writeManuscript(t, dir, "02-the-crossing.md", `%%%
title = "The Crossing"
summary = "Mara crosses the strait."
order = 2
%%%

The water was colder than she expected.`)
	writeManuscript(t, dir, "01-departure.md", `%%%
title = "Departure"
order = 1
%%%

She left before dawn.`)
	writeManuscript(t, dir, "notes.txt", "not a chapter")

	repo := NewFSChapterRepository(dir, novelID)

	chapters, chapterMap, err := repo.GetChapters()
	if err != nil {
		t.Fatalf("GetChapters failed: %v", err)
	}
	repo.chaptersCacheSorted = chapters
	repo.chaptersCache.SetTo(chapterMap)

	t.Run("Only markdown files become chapters", func(t *testing.T) {
		if len(chapters) != 2 {
			t.Fatalf("Expected 2 chapters, got %d", len(chapters))
		}
	})

	t.Run("Front matter ordering and metadata", func(t *testing.T) {
		if chapters[0].Title != "Departure" || chapters[1].Title != "The Crossing" {
			t.Errorf("Unexpected chapter order: %q, %q", chapters[0].Title, chapters[1].Title)
		}
		if chapters[1].Summary != "Mara crosses the strait." {
			t.Errorf("Unexpected summary %q", chapters[1].Summary)
		}
	})

	t.Run("GetChapterList scoped to the manuscript novel", func(t *testing.T) {
		if got := repo.GetChapterList(novelID); len(got) != 2 {
			t.Errorf("Expected 2 chapters for %s, got %d", novelID, len(got))
		}
		if got := repo.GetChapterList(model.NovelID("other")); got != nil {
			t.Errorf("Expected nil for a foreign novel, got %d chapters", len(got))
		}
	})

	t.Run("ReadChapter by content-derived ID", func(t *testing.T) {
		id := string(util.ContentHashString("01-departure"))
		chapter, err := repo.ReadChapter(id)
		if err != nil {
			t.Fatalf("ReadChapter failed: %v", err)
		}
		if chapter.Title != "Departure" {
			t.Errorf("Expected title %q, got %q", "Departure", chapter.Title)
		}

		if _, err := repo.ReadChapter("missing"); err == nil {
			t.Error("Expected an error for an unknown chapter")
		}
	})

	t.Run("Writes are rejected", func(t *testing.T) {
		chapter := repo.NewChapter(novelID)
		if err := repo.SaveChapter(chapter); !errors.Is(err, errReadOnly) {
			t.Errorf("Expected errReadOnly from SaveChapter, got %v", err)
		}
		if err := repo.SetChapterContent(chapter); !errors.Is(err, errReadOnly) {
			t.Errorf("Expected errReadOnly from SetChapterContent, got %v", err)
		}
		if err := repo.DeleteChapter(chapter.ID); !errors.Is(err, errReadOnly) {
			t.Errorf("Expected errReadOnly from DeleteChapter, got %v", err)
		}
	})
}
