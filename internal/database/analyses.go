package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/CompanyPulse/internal/logger"
	"github.com/TobiSchelling/CompanyPulse/internal/sentiment"
)

func companyKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// InsertAnalysis stores a completed analysis with one row per classified article.
func (db *DB) InsertAnalysis(a *Analysis) error {
	articlesJSON, err := json.Marshal(a.Articles)
	if err != nil {
		return fmt.Errorf("encoding articles: %w", err)
	}
	sourcesJSON, err := json.Marshal(a.Sources)
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}
	comparativeJSON, err := json.Marshal(a.Comparative)
	if err != nil {
		return fmt.Errorf("encoding comparative: %w", err)
	}
	warningsJSON, err := json.Marshal(a.Warnings)
	if err != nil {
		return fmt.Errorf("encoding warnings: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	d := a.Comparative.Distribution
	createdAt := any(nil)
	if a.CreatedAt != "" {
		createdAt = a.CreatedAt
	}
	_, err = tx.Exec(
		`INSERT INTO analyses
		(id, company_name, company_key, model_provider, articles_json, sources_json,
		 comparative_json, final_report, translation, translation_language, audio_file,
		 warnings_json, positive, negative, neutral, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, datetime('now')))`,
		a.ID, a.CompanyName, companyKey(a.CompanyName), a.ModelProvider,
		string(articlesJSON), string(sourcesJSON), string(comparativeJSON),
		a.FinalReport, a.Translation, a.Language, a.AudioFile, string(warningsJSON),
		d.Positive, d.Negative, d.Neutral, createdAt,
	)
	if err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}

	for i, rec := range a.Articles {
		if rec == nil {
			continue
		}
		topics, _ := json.Marshal(rec.Topics)
		var url string
		if i < len(a.Sources) {
			url = a.Sources[i].URL
		}
		if _, err := tx.Exec(
			`INSERT INTO analysis_articles (analysis_id, slot, title, url, sentiment, topics)
			VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, i+1, rec.Title, url, string(rec.Sentiment), string(topics),
		); err != nil {
			return fmt.Errorf("inserting article %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if a.CreatedAt == "" {
		if err := db.conn.QueryRow("SELECT created_at FROM analyses WHERE id = ?", a.ID).Scan(&a.CreatedAt); err != nil {
			logger.Log.Warnf("Reading created_at of analysis %s: %v", a.ID, err)
		}
	}
	return nil
}

// GetAnalysis returns the analysis with the given id, or nil if none exists.
func (db *DB) GetAnalysis(id string) (*Analysis, error) {
	row := db.conn.QueryRow(
		`SELECT id, company_name, model_provider, articles_json, sources_json, comparative_json,
		final_report, translation, translation_language, audio_file, warnings_json, created_at
		FROM analyses WHERE id = ?`, id,
	)

	var (
		a                                   Analysis
		articlesJSON, comparativeJSON       string
		sourcesJSON, warningsJSON, language sql.NullString
		audioFile                           sql.NullString
	)
	if err := row.Scan(&a.ID, &a.CompanyName, &a.ModelProvider, &articlesJSON, &sourcesJSON,
		&comparativeJSON, &a.FinalReport, &a.Translation, &language, &audioFile,
		&warningsJSON, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(articlesJSON), &a.Articles); err != nil {
		return nil, fmt.Errorf("decoding articles: %w", err)
	}
	if err := json.Unmarshal([]byte(comparativeJSON), &a.Comparative); err != nil {
		return nil, fmt.Errorf("decoding comparative: %w", err)
	}
	// Sources and warnings are auxiliary; a corrupt value leaves the field empty.
	if sourcesJSON.Valid {
		if err := json.Unmarshal([]byte(sourcesJSON.String), &a.Sources); err != nil {
			logger.Log.Warnf("Decoding sources of analysis %s: %v", a.ID, err)
			a.Sources = nil
		}
	}
	if warningsJSON.Valid {
		if err := json.Unmarshal([]byte(warningsJSON.String), &a.Warnings); err != nil {
			logger.Log.Warnf("Decoding warnings of analysis %s: %v", a.ID, err)
			a.Warnings = nil
		}
	}
	a.Language = language.String
	a.AudioFile = audioFile.String
	a.AudioURL = AudioURLFor(a.AudioFile)
	return &a, nil
}

// ListAnalyses returns the most recent analyses, newest first. An empty
// company lists all companies; limit <= 0 means no limit.
func (db *DB) ListAnalyses(company string, limit int) ([]AnalysisSummary, error) {
	query := `SELECT a.id, a.company_name, a.model_provider, a.positive, a.negative, a.neutral,
		COALESCE(a.audio_file, ''),
		(SELECT COUNT(*) FROM analysis_articles aa WHERE aa.analysis_id = a.id),
		a.created_at
		FROM analyses a`
	var args []any
	if company != "" {
		query += " WHERE a.company_key = ?"
		args = append(args, companyKey(company))
	}
	query += " ORDER BY a.created_at DESC, a.rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnalysisSummary
	for rows.Next() {
		var s AnalysisSummary
		var audio string
		if err := rows.Scan(&s.ID, &s.CompanyName, &s.ModelProvider,
			&s.Distribution.Positive, &s.Distribution.Negative, &s.Distribution.Neutral,
			&audio, &s.ArticleCount, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.HasAudio = audio != ""
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteAnalysis removes an analysis and its article rows. It reports
// whether a row was deleted.
func (db *DB) DeleteAnalysis(id string) (bool, error) {
	res, err := db.conn.Exec("DELETE FROM analyses WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// TopTopics returns the topics most often mentioned by classified articles
// about company, most frequent first. An empty company counts all analyses.
func (db *DB) TopTopics(company string, limit int) ([]TopicCount, error) {
	query := `SELECT aa.topics FROM analysis_articles aa
		JOIN analyses a ON a.id = aa.analysis_id`
	var args []any
	if company != "" {
		query += " WHERE a.company_key = ?"
		args = append(args, companyKey(company))
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	display := make(map[string]string)
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var topics []string
		if raw.Valid {
			if err := json.Unmarshal([]byte(raw.String), &topics); err != nil {
				logger.Log.Warnf("Skipping article with undecodable topics: %v", err)
				continue
			}
		}
		seen := make(map[string]struct{})
		for _, t := range topics {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if _, ok := display[key]; !ok {
				display[key] = strings.TrimSpace(t)
			}
			counts[key]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]TopicCount, 0, len(counts))
	for key, n := range counts {
		out = append(out, TopicCount{Topic: display[key], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CompanyDistribution sums the sentiment distribution over every stored
// analysis of company.
func (db *DB) CompanyDistribution(company string) (sentiment.Distribution, error) {
	var d sentiment.Distribution
	err := db.conn.QueryRow(
		`SELECT COALESCE(SUM(positive), 0), COALESCE(SUM(negative), 0), COALESCE(SUM(neutral), 0)
		FROM analyses WHERE company_key = ?`, companyKey(company),
	).Scan(&d.Positive, &d.Negative, &d.Neutral)
	return d, err
}

// GetStats returns aggregate statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM analyses", &s.TotalAnalyses},
		{"SELECT COUNT(DISTINCT company_key) FROM analyses", &s.Companies},
		{"SELECT COUNT(*) FROM analysis_articles", &s.ArticlesClassified},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	var last sql.NullString
	if err := db.conn.QueryRow("SELECT MAX(created_at) FROM analyses").Scan(&last); err != nil {
		return nil, err
	}
	s.LastAnalysisAt = last.String
	return s, nil
}
