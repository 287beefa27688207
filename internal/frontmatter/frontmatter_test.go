package frontmatter

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	raw := "---\ntitle: Paxos Made Simple\ncategory: distributed-systems\ntags: consensus, paxos\n---\n# Paxos\n\nBody text.\n"

	meta, body := Parse(raw)

	if got := meta.String("title"); got != "Paxos Made Simple" {
		t.Errorf("title = %q, want %q", got, "Paxos Made Simple")
	}
	if got := meta.String("category"); got != "distributed-systems" {
		t.Errorf("category = %q, want %q", got, "distributed-systems")
	}
	if body != "# Paxos\n\nBody text.\n" {
		t.Errorf("body = %q", body)
	}
}

func TestParseNoBlock(t *testing.T) {
	raw := "# Just a document\n\nNo frontmatter here.\n"

	meta, body := Parse(raw)

	if len(meta) != 0 {
		t.Errorf("expected empty metadata, got %v", meta)
	}
	if body != raw {
		t.Errorf("body = %q, want original input", body)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid yaml", "---\ntitle: [unclosed\n---\nbody\n"},
		{"unterminated block", "---\ntitle: Foo\nbody without closing delimiter\n"},
		{"delimiter mid-document", "some text\n---\ntitle: Foo\n---\nmore\n"},
		{"empty input", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, body := Parse(tt.raw)
			if len(meta) != 0 {
				t.Errorf("expected empty metadata, got %v", meta)
			}
			if body != tt.raw {
				t.Errorf("body = %q, want original input %q", body, tt.raw)
			}
		})
	}
}

func TestParseEmptyBlock(t *testing.T) {
	meta, body := Parse("---\n\n---\nbody\n")
	if len(meta) != 0 {
		t.Errorf("expected empty metadata, got %v", meta)
	}
	if body != "body\n" {
		t.Errorf("body = %q, want %q", body, "body\n")
	}
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"nil", nil, []string{}},
		{"empty list", []any{}, []string{}},
		{"scalar list", []any{"go", "sync"}, []string{"go", "sync"}},
		{"list with blanks", []any{"go", "", nil, "  ", "sync"}, []string{"go", "sync"}},
		{"comma string", "  a , b ,c  ", []string{"a", "b", "c"}},
		{"empty string", "", []string{}},
		{"trailing commas", "a,,b,", []string{"a", "b"}},
		{"numeric entries", []any{1, "two"}, []string{"1", "two"}},
		{"unsupported shape", 42, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTags(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTagsIdempotent(t *testing.T) {
	once := NormalizeTags("  a , b ,c  ")
	twice := NormalizeTags(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("normalization not idempotent: %v vs %v", once, twice)
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		meta Metadata
		path string
		want string
	}{
		{"explicit title", Metadata{"title": "My Title"}, "content/foo.md", "My Title"},
		{"trims explicit title", Metadata{"title": "  My Title  "}, "content/foo.md", "My Title"},
		{"blank title falls back", Metadata{"title": "   "}, "content/paxos-made-simple.md", "Paxos Made Simple"},
		{"nil title falls back", Metadata{"title": nil}, "content/vector_clocks.md", "Vector Clocks"},
		{"no metadata", Metadata{}, "content/systems/consistent-hashing.md", "Consistent Hashing"},
		{"mixed separators", Metadata{}, "a/b/two-phase_commit.md", "Two Phase Commit"},
		{"unusable name", Metadata{}, "content/---.md", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.meta, tt.path); got != tt.want {
				t.Errorf("DeriveTitle(%v, %q) = %q, want %q", tt.meta, tt.path, got, tt.want)
			}
		})
	}
}
