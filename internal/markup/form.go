package markup

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FormExtractor parses the page as HTML and reads the value attribute of the
// first input named Field.Name. Marker and Terminator are ignored.
type FormExtractor struct{}

// Extract implements Extractor.
func (FormExtractor) Extract(body string, f Field) (string, error) {
	if f.Name == "" {
		return "", fmt.Errorf("markup: field needs a name")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("markup: parse html: %w", err)
	}

	var value string
	doc.Find("input").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if name != f.Name {
			return true
		}
		value, _ = s.Attr("value")
		return false
	})
	if value == "" {
		return "", fmt.Errorf("%w: input %q", ErrNotFound, f.Name)
	}
	return value, nil
}

var _ Extractor = FormExtractor{}
