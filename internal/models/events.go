package models

import "time"

// Event types
const (
	EventTypeSaleRecorded  = "SALE_RECORDED"
	EventTypeSyncRequested = "SYNC_REQUESTED"
	EventTypeImportStep    = "IMPORT_STEP"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type; embedding events inherit it.
func (e BaseEvent) Type() string {
	return e.EventType
}

// SaleRecordedEvent is published after a sale is stored for the first time
type SaleRecordedEvent struct {
	BaseEvent
	ProductID      int64  `json:"product_id"`
	Quantity       int    `json:"quantity"`
	Source         Source `json:"source"`
	SourceRecordID string `json:"source_record_id"`
	EventDate      string `json:"event_date,omitempty"`
	EventTime      string `json:"event_time,omitempty"`
	GrossAmount    string `json:"gross_amount"`
	Currency       string `json:"currency"`
}

// SyncRequestedEvent asks the worker to run a live sync. Without a product
// the whole local day is synced.
type SyncRequestedEvent struct {
	BaseEvent
	ProductID int64  `json:"product_id,omitempty"`
	Date      string `json:"date,omitempty"`
	Force     bool   `json:"force"`
}

// ImportStepEvent reports the outcome of one backfill step
type ImportStepEvent struct {
	BaseEvent
	RunID          string  `json:"run_id"`
	Source         string  `json:"source"`
	Processed      int     `json:"processed"`
	TotalProcessed int     `json:"total_processed"`
	Progress       float64 `json:"progress"`
	Complete       bool    `json:"complete"`
}
