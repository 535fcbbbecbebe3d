// Command import-manuscript imports a directory of markdown files as the
// chapters of a new novel. Chapter titles, summaries and ordering come from
// TOML front matter when present, otherwise from the file names.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/model"
	"github.com/inkwell-app/inkwell/internal/repository"
	"github.com/inkwell-app/inkwell/internal/util"
)

func main() {
	path := flag.String("path", "", "Path to the directory containing .md files")
	ownerID := flag.String("owner-id", "", "Owner user ID for the novel")
	title := flag.String("title", "", "Title of the novel to create")
	dbPath := flag.String("db", "./inkwell.db", "Path to the database file")
	flag.Parse()

	if *path == "" || *ownerID == "" || *title == "" {
		log.Fatal("The --path, --owner-id and --title flags are required")
	}

	database := db.NewSQLite(*dbPath)
	if err := database.InitDB(); err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	defer database.Close()

	novels := repository.NewNovelRepository(database)
	chapters := repository.NewDBChapterRepository(database)

	novel := novels.NewNovel(model.UserID(*ownerID))
	novel.Title = *title
	if err := novels.SaveNovel(novel); err != nil {
		log.Fatalf("Error creating novel: %v", err)
	}
	log.Printf("Created novel %q (%s)", novel.Title, novel.ID)

	files, err := os.ReadDir(*path)
	if err != nil {
		log.Fatalf("Error reading directory %s: %v", *path, err)
	}

	order := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".md") {
			continue
		}

		order++
		if err := processFile(*path, file, chapters, novel.ID, model.UserID(*ownerID), order); err != nil {
			log.Printf("Error processing file %s: %v", file.Name(), err)
			continue
		}
		log.Printf("Imported chapter from file: %s", file.Name())
	}

	log.Printf("Imported %d chapters into %q", order, novel.Title)
}

// processFile imports a single .md file as a chapter.
func processFile(dirPath string, file os.DirEntry, repo repository.ChapterRepository, novelID model.NovelID, owner model.UserID, order int) error {
	filePath := filepath.Join(dirPath, file.Name())

	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	// Determine the title: use front matter if available, otherwise the
	// file name.
	title := strings.TrimSuffix(file.Name(), ".md")
	summary := ""
	if meta, err := util.GetFrontMatter(content); err == nil {
		if meta.Title != "" {
			title = meta.Title
		}
		summary = meta.Summary
		if meta.Order != 0 {
			order = meta.Order
		}
	}

	fileInfo, err := file.Info()
	if err != nil {
		return err
	}

	chapter := repo.NewChapter(novelID)
	chapter.Title = title
	chapter.Summary = summary
	chapter.Order = order
	chapter.Markdown = content
	chapter.ModifiedDate = fileInfo.ModTime().UTC()
	chapter.Owner = owner

	return repo.SaveChapter(chapter)
}
