// Package util provides utility functions for content hashing and front matter parsing.
package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/gomarkdown/markdown"

	"github.com/mmarkdown/mmark/v2/mast"
)

// ChapterMeta is the TOML front matter carried at the top of a chapter
// markdown file, delimited by %%% lines.
type ChapterMeta struct {
	*mast.TitleData
	Summary  string
	Order    int
	Consumed int
}

func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}

func GetFrontMatter(md []byte) (*ChapterMeta, error) {
	md = markdown.NormalizeNewlines(md)
	md = bytes.TrimLeft(md, "\n \t\r")

	delimiter := []byte("%%%")

	// Check if md is long enough to contain the delimiter
	if len(md) < 2*len(delimiter) {
		return nil, fmt.Errorf("invalid front matter format")
	}

	first := bytes.Index(md[:len(delimiter)+1], delimiter)
	if first == -1 {
		return nil, fmt.Errorf("invalid front matter format")
	}

	second := bytes.Index(md[first+len(delimiter):], delimiter)
	if second == -1 {
		return nil, fmt.Errorf("invalid front matter format")
	}

	end := second + 2*len(delimiter) + 1
	if end > len(md) {
		return nil, fmt.Errorf("invalid front matter format")
	}

	frontMatter := md[len(delimiter) : end-len(delimiter)-1]
	meta := &ChapterMeta{
		TitleData: &mast.TitleData{},
	}

	if _, err := toml.Decode(string(frontMatter), meta); err != nil {
		return nil, fmt.Errorf("failed to decode front matter: %w", err)
	}

	if meta.Language == "" {
		meta.Language = "en"
	}
	meta.Consumed = end

	return meta, nil
}
