package markdown

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document represents a Markdown file with YAML frontmatter.
type Document struct {
	Frontmatter map[string]any
	Body        string

	raw string
}

// Decode unmarshals the frontmatter into v, which should be a pointer to a
// struct with yaml tags.
func (d Document) Decode(v any) error {
	if strings.TrimSpace(d.raw) == "" {
		return nil
	}
	return yaml.Unmarshal([]byte(d.raw), v)
}

// String returns the frontmatter value for key, or "" when it is missing or
// not a scalar.
func (d Document) String(key string) string {
	v, ok := d.Frontmatter[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// ParseFile reads a Markdown file and extracts YAML frontmatter and body.
// Frontmatter is expected at the top of the file between two lines containing only "---".
func ParseFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()
	return Parse(f)
}

// ParseBytes parses an in-memory document, such as an embedded file.
func ParseBytes(b []byte) (Document, error) {
	return Parse(bytes.NewReader(b))
}

// Parse reads a document with optional frontmatter from r.
func Parse(r io.Reader) (Document, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(3)
	if err != nil && !errors.Is(err, io.EOF) {
		return Document{}, err
	}
	hasFM := string(peek) == "---"
	var fmBuf strings.Builder
	var bodyBuf strings.Builder

	if hasFM {
		// opening '---'
		if _, err := br.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			return Document{}, err
		}
		closed := false
		for {
			l, err := br.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return Document{}, err
			}
			if strings.TrimSpace(l) == "---" {
				closed = true
				break
			}
			fmBuf.WriteString(l)
			if errors.Is(err, io.EOF) {
				break
			}
		}
		if !closed {
			return Document{}, errors.New("unterminated frontmatter")
		}
	}
	for {
		l, err := br.ReadString('\n')
		bodyBuf.WriteString(l)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Document{}, err
		}
	}

	d := Document{
		Frontmatter: map[string]any{},
		Body:        bodyBuf.String(),
		raw:         fmBuf.String(),
	}
	if hasFM {
		m := map[string]any{}
		if err := yaml.Unmarshal([]byte(d.raw), &m); err != nil {
			return Document{}, fmt.Errorf("frontmatter: %w", err)
		}
		if m != nil {
			d.Frontmatter = m
		}
	}
	return d, nil
}

// Format renders frontmatter as a YAML header followed by body, the inverse
// of Parse.
func Format(frontmatter any, body string) ([]byte, error) {
	head, err := yaml.Marshal(frontmatter)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n")
	body = strings.TrimSpace(body)
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	return b.Bytes(), nil
}
