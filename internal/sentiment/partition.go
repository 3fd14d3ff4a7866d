package sentiment

import (
	"fmt"
	"strings"
)

// Buckets holds the article summaries grouped by sentiment class.
type Buckets struct {
	Positive string
	Negative string
	Neutral  string
}

// Get returns the bucket text for class c.
func (b Buckets) Get(c Class) string {
	switch c {
	case Positive:
		return b.Positive
	case Negative:
		return b.Negative
	case Neutral:
		return b.Neutral
	}
	return ""
}

// EmptyBucket is the text used for a class with no articles.
func EmptyBucket(c Class) string {
	return fmt.Sprintf("No %s articles available.", c)
}

// Partition groups record titles and summaries by class, keeping input
// order. Nil records and unrecognized classes are dropped.
func Partition(records []*Record) Buckets {
	entries := make(map[Class][]string, len(Classes))
	for _, r := range records {
		cls, ok := r.class()
		if !ok {
			continue
		}
		entries[cls] = append(entries[cls], fmt.Sprintf("Title: %s\nSummary: %s", r.Title, r.Summary))
	}

	join := func(c Class) string {
		if len(entries[c]) == 0 {
			return EmptyBucket(c)
		}
		return strings.Join(entries[c], "\n")
	}

	return Buckets{
		Positive: join(Positive),
		Negative: join(Negative),
		Neutral:  join(Neutral),
	}
}
