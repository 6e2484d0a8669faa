package model

import (
	"fmt"
	"time"
)

// Ingestion result statuses
const (
	IngestionCompleted = "completed"
	IngestionNoNewData = "no_new_data"
	IngestionSkipped   = "skipped"
	IngestionFailed    = "failed"
)

// PairConfig is one configured (symbol, interval, initial start date) entry
type PairConfig struct {
	Symbol    string `json:"symbol" mapstructure:"symbol" validate:"required"`
	Interval  string `json:"interval" mapstructure:"interval" validate:"required"`
	StartDate string `json:"start_date" mapstructure:"startDate" validate:"required"`
}

// StartTime parses StartDate as YYYY-MM-DD or RFC3339, always in UTC
func (p PairConfig) StartTime() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, p.StartDate); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", p.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start date %q for %s/%s: use YYYY-MM-DD or RFC3339", p.StartDate, p.Symbol, p.Interval)
	}
	return t, nil
}

// IngestionResult summarises one pair of one ingestion run
type IngestionResult struct {
	RunID         string        `json:"run_id"`
	Symbol        string        `json:"symbol"`
	Interval      string        `json:"interval"`
	TradingPairID int64         `json:"trading_pair_id,omitempty"`
	Status        string        `json:"status"`
	ResumeFrom    int64         `json:"resume_from"`
	Fetched       int           `json:"fetched"`
	Inserted      int64         `json:"inserted"`
	Skipped       int64         `json:"skipped"`
	Pages         int           `json:"pages"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
}

// IngestionEvent is published after a pair has been persisted
type IngestionEvent struct {
	RunID         string    `json:"run_id"`
	Source        string    `json:"source"`
	Symbol        string    `json:"symbol"`
	Interval      string    `json:"interval"`
	TradingPairID int64     `json:"trading_pair_id"`
	Inserted      int64     `json:"inserted"`
	FromOpenTime  int64     `json:"from"`
	ToOpenTime    int64     `json:"to"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// IngestionRun is the status of an asynchronous run started over HTTP
type IngestionRun struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Pairs     int       `json:"pairs"`
}
