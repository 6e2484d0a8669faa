package model

import (
	"time"
)

// Source is an exchange or data provider
type Source struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Type        string  `json:"type" db:"type"`
	Description *string `json:"description,omitempty" db:"description"`
}

// TradingPair identifies a symbol stored at one interval from one source
type TradingPair struct {
	ID         int64     `json:"id" db:"id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Interval   string    `json:"interval" db:"interval"`
	SourceID   int64     `json:"source_id" db:"source_id"`
	SourceName string    `json:"source" db:"source_name"`
	Type       string    `json:"type" db:"type"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// SystemStatus is the upstream health reported by the exchange.
// Status 0 means normal, anything else means maintenance.
type SystemStatus struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// Available reports whether the exchange accepts data requests
func (s SystemStatus) Available() bool {
	return s.Status == 0
}
