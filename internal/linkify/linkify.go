// Package linkify splits chat text into literal runs and actionable links.
package linkify

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Kind classifies a Segment.
type Kind int

const (
	// KindText is literal text rendered as-is.
	KindText Kind = iota
	// KindURL is a web address.
	KindURL
	// KindPhone is a phone number rendered as a dial link.
	KindPhone
)

func (k Kind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindPhone:
		return "phone"
	default:
		return "text"
	}
}

// MarshalText renders the kind by name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "text":
		*k = KindText
	case "url":
		*k = KindURL
	case "phone":
		*k = KindPhone
	default:
		return fmt.Errorf("unknown segment kind %q", b)
	}
	return nil
}

// Segment is one run of a segmented message. Href is empty for text.
type Segment struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// IsLink returns true for URL and phone segments.
func (s Segment) IsLink() bool {
	return s.Kind != KindText
}

// Group 1 is a URL, group 2 a phone number.
var linkPattern = regexp.MustCompile(
	`(?i)(https?://\S+|www\.\S+)` +
		`|(\(\d{3}\)[-.\s]?\d{3}[-.\s]?\d{4}|\d{3}[-.\s]\d{3}[-.\s]?\d{4})`)

var nonDigits = regexp.MustCompile(`\D`)

// Split splits text into literal and link segments in original order.
// Text without links comes back as a single literal segment.
func Split(text string) []Segment {
	matches := linkPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []Segment{{Kind: KindText, Text: text}}
	}

	segments := make([]Segment, 0, len(matches)*2+1)
	pos := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > pos {
			segments = append(segments, Segment{Kind: KindText, Text: text[pos:start]})
		}

		part := text[start:end]
		if m[2] >= 0 {
			segments = append(segments, Segment{Kind: KindURL, Text: part, Href: urlHref(part)})
		} else {
			segments = append(segments, Segment{Kind: KindPhone, Text: part, Href: "tel:" + nonDigits.ReplaceAllString(part, "")})
		}
		pos = end
	}
	if pos < len(text) {
		segments = append(segments, Segment{Kind: KindText, Text: text[pos:]})
	}
	return segments
}

func urlHref(part string) string {
	if strings.HasPrefix(strings.ToLower(part), "http") {
		return part
	}
	return "https://" + part
}

// HTML renders text as escaped HTML with anchors for every link.
func HTML(text string) string {
	var b strings.Builder
	for _, s := range Split(text) {
		switch s.Kind {
		case KindURL:
			b.WriteString(`<a href="` + html.EscapeString(s.Href) + `" target="_blank" rel="noopener noreferrer">`)
			b.WriteString(html.EscapeString(s.Text))
			b.WriteString(`</a>`)
		case KindPhone:
			b.WriteString(`<a href="` + html.EscapeString(s.Href) + `">`)
			b.WriteString(html.EscapeString(s.Text))
			b.WriteString(`</a>`)
		default:
			b.WriteString(html.EscapeString(s.Text))
		}
	}
	return b.String()
}
