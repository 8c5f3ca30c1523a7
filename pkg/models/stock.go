package models

import "time"

// StockUpdate represents a single simulated tick for a stock symbol
type StockUpdate struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
	SeqID  int64     `json:"seq_id"` // monotonic counter per symbol
}
