// Package frontmatter splits the leading metadata block, delimited by ---
// lines, out of Markdown content. Ansuz writes flat key: value frontmatter
// only; nested YAML structures are flattened to their string form.
package frontmatter

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Split separates the frontmatter block (between leading --- delimiters) from
// the Markdown body. If no well-formed block is found, the whole content is
// returned as body with a nil field map.
func Split(content string) (fields map[string]string, body string) {
	trimmed := strings.TrimLeft(content, "\n\r")

	if !strings.HasPrefix(trimmed, delim+"\n") {
		return nil, content
	}

	rest := trimmed[len(delim)+1:]

	// The terminator is a line holding exactly ---; lines that merely start
	// with it (---- or ---text) belong to the block.
	var block, after string
	if idx := strings.Index(rest, "\n"+delim+"\n"); idx >= 0 {
		block = rest[:idx]
		after = rest[idx+len(delim)+2:]
	} else if strings.HasSuffix(rest, "\n"+delim) {
		block = rest[:len(rest)-len(delim)-1]
	} else {
		// No closing delimiter; treat everything as body.
		return nil, content
	}
	body = strings.TrimLeft(after, "\n\r")

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		// Invalid YAML is not an error to callers; the file simply has no
		// usable frontmatter.
		return nil, content
	}

	fields = make(map[string]string, len(raw))
	for k, v := range raw {
		fields[k] = stringify(v)
	}
	return fields, body
}

// Strip returns content with any leading frontmatter block removed.
func Strip(content string) string {
	_, body := Split(content)
	return body
}

// HasBlock reports whether content begins with a frontmatter block.
func HasBlock(content string) bool {
	fields, _ := Split(content)
	return fields != nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}
