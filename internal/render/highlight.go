package render

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// HighlightMarkdown syntax-highlights raw chapter markdown for the editor's
// source view. Unlike the rendered preview, the markdown itself is the
// content here, so line breaks are preserved verbatim.
func HighlightMarkdown(markdown string, theme string) (string, error) {
	lexer := lexers.Get("markdown")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(theme)
	if style == nil {
		style = styles.Fallback
	}

	formatter := html.New(
		html.WithClasses(true),
		html.WithLineNumbers(false),
		html.PreventSurroundingPre(true),
	)

	iterator, err := lexer.Tokenise(nil, markdown)
	if err != nil {
		return markdown, err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return markdown, err
	}

	result := `<div class="chapter-source">` + buf.String() + `</div>`
	result = strings.ReplaceAll(result, "\n", "<br>\n")

	return result, nil
}
