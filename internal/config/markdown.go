package config

import "regexp"

// MarkdownRenderer selects the render pipeline for chapter previews and
// exports. "mmark" understands the TOML front matter chapters carry; any
// other value falls back to the classic gomarkdown renderer.
const (
	MarkdownRenderer = "mmark"
)

var (
	// RegexCallout matches `// <<n>>` callout markers inside code blocks.
	RegexCallout = regexp.MustCompile(`//\s*<<(\d+)>>`)
)
