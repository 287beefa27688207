// Package frontmatter extracts the leading YAML metadata block from
// markdown documents and normalizes the fields the sync engine cares about.
//
// Parsing is deliberately forgiving: a missing or malformed block is not an
// error. The document body must survive intact so a bad metadata block never
// loses content.
package frontmatter

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Metadata holds the decoded frontmatter fields of one document.
type Metadata map[string]any

// blockRe matches a document that starts with a ---/--- delimited block.
// Group 1 is the raw YAML, group 2 the remaining body.
var blockRe = regexp.MustCompile(`(?s)\A---[ \t]*\r?\n(.*?)\r?\n---[ \t]*\r?\n?(.*)\z`)

var titleCaser = cases.Title(language.English)

// Parse splits raw document text into metadata and body.
//
// If there is no leading delimited block, or the block is not valid YAML,
// Parse returns an empty Metadata and the original input as the body.
func Parse(raw string) (Metadata, string) {
	m := blockRe.FindStringSubmatch(raw)
	if m == nil {
		return Metadata{}, raw
	}

	var meta Metadata
	if err := yaml.Unmarshal([]byte(m[1]), &meta); err != nil {
		return Metadata{}, raw
	}
	if meta == nil {
		meta = Metadata{}
	}
	return meta, m[2]
}

// String returns the trimmed string value for key, or "" if the key is
// absent, nil, or blank after trimming.
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

// NormalizeTags converts a frontmatter tags value into a clean tag list.
//
// Accepted shapes: a YAML sequence of scalars, or a single comma-separated
// string. Each tag is whitespace-trimmed; empty and nil entries are dropped.
// Any other shape, including absence, yields an empty list. The result is
// stable under re-normalization.
func NormalizeTags(v any) []string {
	tags := []string{}
	switch tv := v.(type) {
	case nil:
	case []any:
		for _, t := range tv {
			if t == nil {
				continue
			}
			s := strings.TrimSpace(fmt.Sprintf("%v", t))
			if s != "" {
				tags = append(tags, s)
			}
		}
	case []string:
		for _, t := range tv {
			if s := strings.TrimSpace(t); s != "" {
				tags = append(tags, s)
			}
		}
	case string:
		for _, t := range strings.Split(tv, ",") {
			if s := strings.TrimSpace(t); s != "" {
				tags = append(tags, s)
			}
		}
	}
	return tags
}

// DeriveTitle resolves a document title from metadata, falling back to a
// humanized form of the file's base name when the frontmatter has no usable
// title. Returns "" only when neither source yields anything, which callers
// treat as a per-document failure.
func DeriveTitle(meta Metadata, filePath string) string {
	if t := meta.String("title"); t != "" {
		return t
	}

	name := path.Base(filePath)
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return titleCaser.String(name)
}
