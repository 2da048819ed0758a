package crm

import (
	"html"
	"regexp"
	"strings"

	"github.com/sells-group/reengage-cli/pkg/pipedrive"
)

// NoteSeparator joins consecutive meeting notes.
const NoteSeparator = "\n\n---\n\n"

var tagPattern = regexp.MustCompile(`<[^>]*>?`)

// CleanHTML replaces tags with spaces and decodes entities.
func CleanHTML(s string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(s, " "))
}

// JoinNotes cleans each note and joins the non-blank ones.
func JoinNotes(notes []pipedrive.Note) string {
	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		c := CleanHTML(n.Content)
		if strings.TrimSpace(c) == "" {
			continue
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, NoteSeparator)
}
