// Package template expands placeholder tokens in card content and filename
// patterns. Rendering happens exactly once, when a card is created; uploading
// never re-renders.
package template

import (
	"strings"
	"time"
)

const (
	// maxNameLen caps each sanitized title component of a filename.
	maxNameLen = 100

	fallbackTitle = "Untitled"
)

// filenameSanitizer replaces characters that are illegal in file names.
var filenameSanitizer = strings.NewReplacer(
	`\`, "-", `/`, "-", `:`, "-", `*`, "-",
	`?`, "-", `"`, "-", `<`, "-", `>`, "-", `|`, "-",
)

// Vars carries the substitution values for one render.
//
// Now is the render instant; the zero value means time.Now(). Date, time and
// created tokens always derive from it, never from caller-supplied strings.
type Vars struct {
	UUID        string
	Title       string
	SourceURL   string
	SourceTitle string
	Now         time.Time
}

func (v Vars) instant() time.Time {
	if v.Now.IsZero() {
		return time.Now()
	}
	return v.Now
}

// RenderContent substitutes every known token in a content template.
// Unknown tokens are left verbatim. Applying the result to RenderContent
// again with the same vars is a no-op: substituted values never form new
// token syntax.
func RenderContent(pattern string, v Vars) string {
	now := v.instant()
	r := strings.NewReplacer(
		"{{uuid}}", v.UUID,
		"{{title}}", v.Title,
		"{{source_url}}", v.SourceURL,
		"{{source_title}}", v.SourceTitle,
		"{{created}}", now.Format(time.RFC3339),
		"{{date}}", now.Format("2006-01-02"),
		"{{time}}", now.Format("15-04-05"),
	)
	return r.Replace(pattern)
}

// RenderFilename expands a filename pattern and appends the .md extension.
// Title and sourceTitle are sanitized (illegal filename characters become "-")
// and truncated; an empty title falls back to the source title, then to
// "Untitled". The extension is never doubled.
func RenderFilename(pattern, title, sourceTitle string, now time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}

	cleanTitle := title
	if cleanTitle == "" {
		cleanTitle = sourceTitle
	}
	if cleanTitle == "" {
		cleanTitle = fallbackTitle
	}
	cleanTitle = sanitizeName(cleanTitle)

	r := strings.NewReplacer(
		"{{title}}", cleanTitle,
		"{{date}}", now.Format("2006-01-02"),
		"{{time}}", now.Format("15-04-05"),
		"{{source_title}}", sanitizeName(sourceTitle),
	)
	name := r.Replace(pattern)

	if strings.HasSuffix(name, ".md") {
		return name
	}
	return name + ".md"
}

// EnsureID guarantees the card id is discoverable inside rendered content.
// If the template carried no {{uuid}} token, the id is injected as a uuid
// field into the leading frontmatter block. Content without a frontmatter
// block is returned unchanged: for such templates the id is tracked locally
// only and remote lookup by id will not find the note.
func EnsureID(content, id string) string {
	if id == "" || strings.Contains(content, id) {
		return content
	}
	if !strings.HasPrefix(content, "---\n") {
		return content
	}
	return "---\nuuid: \"" + id + "\"\n" + strings.TrimPrefix(content, "---\n")
}

func sanitizeName(s string) string {
	s = filenameSanitizer.Replace(s)
	// Truncate on runes, not bytes; a byte cut could split a multibyte
	// character and leave an invalid filename.
	if r := []rune(s); len(r) > maxNameLen {
		s = string(r[:maxNameLen])
	}
	return s
}
