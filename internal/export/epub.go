// Package export turns a novel's chapters into downloadable manuscripts.
package export

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inkwell-app/inkwell/internal/model"
	"github.com/inkwell-app/inkwell/internal/render"
)

var exportLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	exportLogger = l
}

// Options controls which chapters are included and how the manuscript is
// labeled.
type Options struct {
	Language string

	// IncludeEmpty keeps chapters that have no content yet. By default
	// they are skipped so half-started outlines do not pad the export.
	IncludeEmpty bool
}

func includedChapters(chapters []model.Chapter, opts Options) []model.Chapter {
	if opts.IncludeEmpty {
		return chapters
	}
	out := make([]model.Chapter, 0, len(chapters))
	for _, c := range chapters {
		if len(c.Markdown) > 0 {
			out = append(out, c)
		}
	}
	return out
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const chapterXHTMLFmt = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>%s</title></head>
<body>
%s
</body>
</html>`

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

// WriteEpub writes an EPUB 3 manuscript to w. Chapter markdown is rendered
// to XHTML; front matter blocks are consumed by the renderer rather than
// appearing in the output.
func WriteEpub(w io.Writer, novel *model.Novel, chapters []model.Chapter, opts Options) error {
	chapters = includedChapters(chapters, opts)
	if len(chapters) == 0 {
		return fmt.Errorf("no chapters to export for novel %s", novel.ID)
	}

	language := opts.Language
	if language == "" {
		language = "en"
	}

	zw := zip.NewWriter(w)

	// The mimetype entry must be first and stored uncompressed.
	mimetype, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return fmt.Errorf("error creating mimetype entry: %w", err)
	}
	if _, err := mimetype.Write([]byte("application/epub+zip")); err != nil {
		return fmt.Errorf("error writing mimetype: %w", err)
	}

	container, err := zw.Create("META-INF/container.xml")
	if err != nil {
		return fmt.Errorf("error creating container.xml: %w", err)
	}
	if _, err := container.Write([]byte(containerXML)); err != nil {
		return fmt.Errorf("error writing container.xml: %w", err)
	}

	var manifest strings.Builder
	var spine strings.Builder
	var navItems strings.Builder

	for i, chapter := range chapters {
		id := fmt.Sprintf("chapter-%d", i+1)
		filename := id + ".xhtml"

		html, _ := render.RenderMarkdownMmark(chapter.Markdown, "")
		body := fmt.Sprintf(chapterXHTMLFmt, xmlEscape(chapter.DisplayTitle()), html)

		f, err := zw.Create("OEBPS/" + filename)
		if err != nil {
			return fmt.Errorf("error creating %s: %w", filename, err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			return fmt.Errorf("error writing %s: %w", filename, err)
		}

		fmt.Fprintf(&manifest, `    <item id="%s" href="%s" media-type="application/xhtml+xml"/>`+"\n", id, filename)
		fmt.Fprintf(&spine, `    <itemref idref="%s"/>`+"\n", id)
		fmt.Fprintf(&navItems, `      <li><a href="%s">%s</a></li>`+"\n", filename, xmlEscape(chapter.DisplayTitle()))
	}

	nav, err := zw.Create("OEBPS/nav.xhtml")
	if err != nil {
		return fmt.Errorf("error creating nav.xhtml: %w", err)
	}
	navBody := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>%s</title></head>
<body>
  <nav epub:type="toc">
    <ol>
%s    </ol>
  </nav>
</body>
</html>`, xmlEscape(novel.Title), navItems.String())
	if _, err := nav.Write([]byte(navBody)); err != nil {
		return fmt.Errorf("error writing nav.xhtml: %w", err)
	}

	opf, err := zw.Create("OEBPS/content.opf")
	if err != nil {
		return fmt.Errorf("error creating content.opf: %w", err)
	}
	opfBody := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="book-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="book-id">urn:uuid:%s</dc:identifier>
    <dc:title>%s</dc:title>
    <dc:creator>%s</dc:creator>
    <dc:language>%s</dc:language>
    <meta property="dcterms:modified">%s</meta>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
%s  </manifest>
  <spine>
%s  </spine>
</package>`,
		uuid.New().String(),
		xmlEscape(novel.Title),
		xmlEscape(novel.Author),
		language,
		time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		manifest.String(),
		spine.String(),
	)
	if _, err := opf.Write([]byte(opfBody)); err != nil {
		return fmt.Errorf("error writing content.opf: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("error finalizing epub: %w", err)
	}

	exportLogger.Info().
		Str("novel_id", string(novel.ID)).
		Int("chapters", len(chapters)).
		Msg("EPUB exported")

	return nil
}
