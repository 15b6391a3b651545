// Package markup pulls single hidden form values out of the HTML pages served
// during federated login.
//
// The login pages are parsed against the one markup shape they are known to
// have. The Extractor interface keeps that brittleness out of the login state
// machine so a real parser can be used instead.
package markup

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when the field is absent or empty.
var ErrNotFound = errors.New("markup: field not found")

// Field describes one value to extract: the input's name, the literal marker
// that precedes the value and the sequence that terminates it.
type Field struct {
	Name       string
	Marker     string
	Terminator string
}

// HiddenInput describes an <input name="name" value="..."> field whose value
// ends with terminator, which is `">` or `"/>` depending on the page.
func HiddenInput(name, terminator string) Field {
	return Field{
		Name:       name,
		Marker:     fmt.Sprintf(`name="%s" value="`, name),
		Terminator: terminator,
	}
}

// Extractor returns the value of f in body.
type Extractor interface {
	Extract(body string, f Field) (string, error)
}

// MarkerExtractor slices the value between Field.Marker and the first
// Field.Terminator after it.
type MarkerExtractor struct{}

// Extract implements Extractor.
func (MarkerExtractor) Extract(body string, f Field) (string, error) {
	if f.Marker == "" || f.Terminator == "" {
		return "", fmt.Errorf("markup: field %q needs marker and terminator", f.Name)
	}
	_, tail, ok := strings.Cut(body, f.Marker)
	if !ok {
		return "", fmt.Errorf("%w: marker for %q", ErrNotFound, f.Name)
	}
	value, _, ok := strings.Cut(tail, f.Terminator)
	if !ok {
		return "", fmt.Errorf("%w: terminator %q for %q", ErrNotFound, f.Terminator, f.Name)
	}
	if value == "" {
		return "", fmt.Errorf("%w: empty value for %q", ErrNotFound, f.Name)
	}
	return value, nil
}

var _ Extractor = MarkerExtractor{}

// New returns the extractor for kind: "goquery" selects FormExtractor,
// anything else MarkerExtractor.
func New(kind string) Extractor {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "goquery", "html":
		return FormExtractor{}
	default:
		return MarkerExtractor{}
	}
}
