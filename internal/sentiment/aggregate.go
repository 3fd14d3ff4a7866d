package sentiment

// MaxEnumeratedArticles is the number of article slots reported in the
// per-article unique topic listing.
const MaxEnumeratedArticles = 10

// Distribution counts records per sentiment class.
type Distribution struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// Count returns the number of records in class c.
func (d Distribution) Count(c Class) int {
	switch c {
	case Positive:
		return d.Positive
	case Negative:
		return d.Negative
	case Neutral:
		return d.Neutral
	}
	return 0
}

// Total returns the number of classified records.
func (d Distribution) Total() int {
	return d.Positive + d.Negative + d.Neutral
}

func (d *Distribution) add(c Class) {
	switch c {
	case Positive:
		d.Positive++
	case Negative:
		d.Negative++
	case Neutral:
		d.Neutral++
	}
}

// TopicOverlap describes which topics are shared across a batch and which
// belong to a single article.
type TopicOverlap struct {
	// CommonTopics holds every topic whose multiplicity across the batch,
	// counting repeats inside one article, is greater than one. Ordered by
	// first appearance.
	CommonTopics []string
	// Unique maps a 1-based slot index to the topics only that article
	// mentions. Each of the first MaxEnumeratedArticles slots has an entry;
	// a slot whose article failed classification maps to an empty list.
	Unique map[int][]string
}

// Comparative is the cross-article view of a batch.
type Comparative struct {
	Distribution Distribution `json:"Sentiment Distribution"`
	TopicOverlap TopicOverlap `json:"Topic Overlap"`
}

type aggregateOptions struct {
	legacyUnique bool
}

// AggregateOption tunes Aggregate.
type AggregateOption func(*aggregateOptions)

// WithLegacyUniqueTopics reproduces the historical unique-topic output, where
// each article's unique set is its difference against only the last other
// article in the batch instead of against all of them.
func WithLegacyUniqueTopics() AggregateOption {
	return func(o *aggregateOptions) { o.legacyUnique = true }
}

// Aggregate computes the sentiment distribution and topic overlap for a
// batch. Nil records and unrecognized classes are not counted, though nil
// records still hold their slot in the unique topic listing. The result only
// depends on the records and their order.
func Aggregate(records []*Record, opts ...AggregateOption) Comparative {
	var o aggregateOptions
	for _, opt := range opts {
		opt(&o)
	}

	var c Comparative
	for _, r := range records {
		if cls, ok := r.class(); ok {
			c.Distribution.add(cls)
		}
	}

	c.TopicOverlap.CommonTopics = commonTopics(records)
	if o.legacyUnique {
		c.TopicOverlap.Unique = lastPairUnique(records)
	} else {
		c.TopicOverlap.Unique = uniqueTopics(records)
	}
	return c
}

func commonTopics(records []*Record) []string {
	counts := make(map[string]int)
	var order []string
	for _, r := range records {
		if r == nil {
			continue
		}
		for _, t := range r.Topics {
			if counts[t] == 0 {
				order = append(order, t)
			}
			counts[t]++
		}
	}

	common := []string{}
	for _, t := range order {
		if counts[t] > 1 {
			common = append(common, t)
		}
	}
	return common
}

func uniqueTopics(records []*Record) map[int][]string {
	// owners counts how many distinct records mention each topic.
	owners := make(map[string]int)
	for _, r := range records {
		if r == nil {
			continue
		}
		for _, t := range dedupe(r.Topics) {
			owners[t]++
		}
	}

	unique := make(map[int][]string)
	for i, r := range records {
		if i >= MaxEnumeratedArticles {
			break
		}
		topics := []string{}
		if r == nil {
			unique[i+1] = topics
			continue
		}
		for _, t := range dedupe(r.Topics) {
			if owners[t] == 1 {
				topics = append(topics, t)
			}
		}
		unique[i+1] = topics
	}
	return unique
}

func lastPairUnique(records []*Record) map[int][]string {
	unique := make(map[int][]string)
	for i, r := range records {
		if i >= MaxEnumeratedArticles {
			break
		}
		if r == nil {
			unique[i+1] = []string{}
			continue
		}
		topics := dedupe(r.Topics)
		for j, other := range records {
			if j == i || other == nil {
				continue
			}
			topics = difference(dedupe(r.Topics), other.Topics)
		}
		unique[i+1] = topics
	}
	return unique
}

// dedupe returns topics with repeats removed, keeping first appearance order.
func dedupe(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func difference(a, b []string) []string {
	drop := make(map[string]struct{}, len(b))
	for _, t := range b {
		drop[t] = struct{}{}
	}
	out := []string{}
	for _, t := range a {
		if _, ok := drop[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}
