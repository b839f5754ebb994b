package domain

import "time"

// PageRequest holds the inputs of one paginated read.
// A nil Cursor starts from the beginning; zero Start/End disable that bound.
type PageRequest struct {
	Cursor *int64
	Start  time.Time
	End    time.Time
	Limit  int
}

// Page is one slice of persisted trips in ascending id order.
type Page struct {
	Data       []TripRecord `json:"data"`
	NextCursor *int64       `json:"next_cursor"`
	HasMore    bool         `json:"has_more"`
}

// ScanFilter is the read predicate handed to the store.
type ScanFilter struct {
	AfterID int64
	Start   time.Time
	End     time.Time
	Limit   int
}
