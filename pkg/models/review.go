package models

import "time"

const (
	ReviewStatusPending   = "pending"
	ReviewStatusFulfilled = "fulfilled"
	ReviewStatusFailed    = "failed"
)

// ReviewRecord is the persisted outcome of a summarization request for one product.
// The API creates it on first submission; the review worker is the only writer after that.
// Clients poll GET /reviews/summary/{product_id} until status is fulfilled or failed.
type ReviewRecord struct {
	ProductID    string    `db:"product_id"    json:"product_id"`
	Title        string    `db:"title"         json:"title"`
	Link         string    `db:"link"          json:"link"`
	Reviews      []string  `db:"reviews"       json:"reviews"`
	Summary      *string   `db:"summary"       json:"summary,omitempty"`
	Status       string    `db:"status"        json:"status"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

