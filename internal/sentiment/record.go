package sentiment

import "strings"

// NoTitle is used for records whose source article had no title.
const NoTitle = "No Title"

// Class is the sentiment assigned to a single article.
type Class string

const (
	Positive Class = "positive"
	Negative Class = "negative"
	Neutral  Class = "neutral"
)

// Classes lists the recognized classes in report order.
var Classes = []Class{Positive, Negative, Neutral}

// ParseClass matches s case-insensitively against the known classes.
func ParseClass(s string) (Class, bool) {
	c := Class(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case Positive, Negative, Neutral:
		return c, true
	}
	return "", false
}

// Record is the classification of one article. Records are not modified
// after NewRecord returns them.
type Record struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Reasoning string   `json:"reasoning"`
	Topics    []string `json:"topics"`
	Sentiment Class    `json:"sentiment"`
}

// NewRecord builds a Record, applying the title fallback and copying topics.
func NewRecord(title, summary, reasoning string, topics []string, sentiment Class) *Record {
	title = strings.TrimSpace(title)
	if title == "" {
		title = NoTitle
	}
	return &Record{
		Title:     title,
		Summary:   summary,
		Reasoning: reasoning,
		Topics:    append([]string(nil), topics...),
		Sentiment: sentiment,
	}
}

// class returns the record's recognized class, if any.
func (r *Record) class() (Class, bool) {
	if r == nil {
		return "", false
	}
	return ParseClass(string(r.Sentiment))
}
