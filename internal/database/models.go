package database

import "github.com/TobiSchelling/CompanyPulse/internal/sentiment"

// Analysis is a completed company analysis as returned to clients.
type Analysis struct {
	ID            string                `json:"id"`
	CompanyName   string                `json:"company_name"`
	ModelProvider string                `json:"model_provider"`
	Articles      []*sentiment.Record   `json:"articles"`
	Sources       []SourceRef           `json:"sources,omitempty"`
	Comparative   sentiment.Comparative `json:"comparative_sentiment"`
	FinalReport   string                `json:"final_report"`
	Translation   string                `json:"hindi_translation"`
	Language      string                `json:"translation_language,omitempty"`
	AudioFile     string                `json:"-"`
	AudioURL      string                `json:"audio_url"`
	Warnings      []string              `json:"warnings"`
	CreatedAt     string                `json:"created_at"`
}

// SourceRef identifies the article behind a classification slot.
type SourceRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// AnalysisSummary is a history listing entry.
type AnalysisSummary struct {
	ID            string                 `json:"id"`
	CompanyName   string                 `json:"company_name"`
	ModelProvider string                 `json:"model_provider"`
	Distribution  sentiment.Distribution `json:"distribution"`
	ArticleCount  int                    `json:"article_count"`
	HasAudio      bool                   `json:"has_audio"`
	CreatedAt     string                 `json:"created_at"`
}

// TopicCount is a topic with the number of classified articles mentioning it.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalAnalyses      int
	Companies          int
	ArticlesClassified int
	LastAnalysisAt     string
}

// AudioURLPrefix is the URL path audio files are served under.
const AudioURLPrefix = "/audio/"

// AudioURLFor returns the public URL of a stored audio file, or "" if none.
func AudioURLFor(file string) string {
	if file == "" {
		return ""
	}
	return AudioURLPrefix + file
}
