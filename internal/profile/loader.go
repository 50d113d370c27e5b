// Package profile loads the documents the assistant answers from.
package profile

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"profile-assistant/internal/domain"
)

// Paths locates the three source documents.
type Paths struct {
	Summary  string
	Resume   string
	LinkedIn string
}

// Load reads every source independently. A source that is missing, unreadable
// or unparseable yields the empty string; Load itself never fails.
func Load(p Paths) domain.ProfileContext {
	return domain.ProfileContext{
		Summary:  ReadText(p.Summary),
		Resume:   ReadPDF(p.Resume),
		LinkedIn: ReadPDF(p.LinkedIn),
	}
}

// ReadText returns the whole file as UTF-8 text with line endings normalized
// to "\n", or "" on any failure.
func ReadText(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if !utf8.Valid(data) {
		return ""
	}
	return normalizeNewlines(string(data))
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// ReadPDF concatenates the plain text of every page in page order with no
// separator. Pages without extractable text contribute nothing. Any failure to
// open or parse the document yields "".
func ReadPDF(path string) (text string) {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	// The parser panics on some malformed documents.
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
	}
	return b.String()
}
