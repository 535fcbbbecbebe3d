package export

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/inkwell-app/inkwell/internal/model"
)

type chapterFrontMatter struct {
	Title   string `toml:"title"`
	Summary string `toml:"summary,omitempty"`
	Order   int    `toml:"order"`
}

// ChapterMarkdown returns a chapter as markdown with a TOML front matter
// block, suitable for round-tripping through the manuscript importer.
func ChapterMarkdown(chapter model.Chapter) ([]byte, error) {
	var fm strings.Builder
	enc := toml.NewEncoder(&fm)
	err := enc.Encode(chapterFrontMatter{
		Title:   chapter.DisplayTitle(),
		Summary: chapter.Summary,
		Order:   chapter.Order,
	})
	if err != nil {
		return nil, fmt.Errorf("error encoding front matter: %w", err)
	}

	var out strings.Builder
	out.WriteString("%%%\n")
	out.WriteString(fm.String())
	out.WriteString("%%%\n\n")
	out.Write(stripFrontMatter(chapter.Markdown))

	return []byte(out.String()), nil
}

// stripFrontMatter drops an existing %%% block so exports do not stack
// front matter on top of front matter.
func stripFrontMatter(md []byte) []byte {
	s := string(md)
	if !strings.HasPrefix(s, "%%%") {
		return md
	}
	rest := s[3:]
	end := strings.Index(rest, "%%%")
	if end < 0 {
		return md
	}
	return []byte(strings.TrimLeft(rest[end+3:], "\n"))
}

// WriteMarkdownBundle writes a zip of per-chapter markdown files plus a
// novel.toml manifest.
func WriteMarkdownBundle(w io.Writer, novel *model.Novel, chapters []model.Chapter, opts Options) error {
	chapters = includedChapters(chapters, opts)
	if len(chapters) == 0 {
		return fmt.Errorf("no chapters to export for novel %s", novel.ID)
	}

	zw := zip.NewWriter(w)

	manifest, err := zw.Create("novel.toml")
	if err != nil {
		return fmt.Errorf("error creating manifest: %w", err)
	}
	enc := toml.NewEncoder(manifest)
	err = enc.Encode(struct {
		Title       string `toml:"title"`
		Description string `toml:"description,omitempty"`
		Author      string `toml:"author,omitempty"`
		Chapters    int    `toml:"chapters"`
	}{novel.Title, novel.Description, novel.Author, len(chapters)})
	if err != nil {
		return fmt.Errorf("error encoding manifest: %w", err)
	}

	for i, chapter := range chapters {
		content, err := ChapterMarkdown(chapter)
		if err != nil {
			return err
		}

		filename := fmt.Sprintf("%02d-%s.md", i+1, slugify(chapter.DisplayTitle()))
		f, err := zw.Create(filename)
		if err != nil {
			return fmt.Errorf("error creating %s: %w", filename, err)
		}
		if _, err := f.Write(content); err != nil {
			return fmt.Errorf("error writing %s: %w", filename, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("error finalizing bundle: %w", err)
	}

	exportLogger.Info().
		Str("novel_id", string(novel.ID)).
		Int("chapters", len(chapters)).
		Msg("Markdown bundle exported")

	return nil
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "chapter"
	}
	return slug
}
