// Package parser encodes and decodes documents: a YAML front-matter block
// followed by a Markdown body.
package parser

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/starford/quire/internal/models"
)

const delim = "---"

// ErrNoFrontmatter is returned by Decode when data does not start with a front-matter block.
var ErrNoFrontmatter = errors.New("parser: missing front-matter")

// Encode serialises obj as front-matter plus body. The body is written verbatim.
func Encode(obj *models.DataObj) ([]byte, error) {
	meta := *obj
	if meta.Tags == nil {
		meta.Tags = []string{}
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&meta); err != nil {
		return nil, fmt.Errorf("parser: encode front-matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: encode front-matter: %w", err)
	}
	buf.WriteString(delim + "\n")
	buf.WriteString(obj.Content)
	return buf.Bytes(), nil
}

// Decode parses data produced by Encode. Content is everything after the
// closing delimiter line, byte for byte.
func Decode(data []byte) (*models.DataObj, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	var obj models.DataObj
	if err := yaml.Unmarshal(fm, &obj); err != nil {
		return nil, fmt.Errorf("parser: decode front-matter: %w", err)
	}
	if obj.Tags == nil {
		obj.Tags = []string{}
	}
	obj.Content = string(body)
	return &obj, nil
}

// splitFrontmatter separates the YAML block between the leading --- delimiters
// from the body. Delimiter lines may end in \r\n; the body is returned as is.
func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	line, rest, ok := cutLine(data)
	if !ok || !isDelim(line) {
		return nil, nil, ErrNoFrontmatter
	}
	fm := rest
	for len(rest) > 0 {
		line, next, closed := cutLine(rest)
		if isDelim(line) {
			block := fm[:len(fm)-len(rest)]
			if !closed {
				return block, nil, nil
			}
			return block, next, nil
		}
		rest = next
	}
	return nil, nil, fmt.Errorf("%w: no closing delimiter", ErrNoFrontmatter)
}

// cutLine splits data after the first newline. ok is false when data has none.
func cutLine(data []byte) (line, rest []byte, ok bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return data, nil, false
	}
	return data[:i+1], data[i+1:], true
}

func isDelim(line []byte) bool {
	return string(bytes.TrimRight(line, "\r\n")) == delim
}
