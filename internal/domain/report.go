package domain

// AppendResult is the outcome of persisting a single record: ID is set on
// success, Err on failure.
type AppendResult struct {
	Index int
	ID    int64
	Err   error
}

// OK reports whether the record was persisted.
func (r AppendResult) OK() bool { return r.Err == nil }

// BatchReport aggregates the per-record results of one batch insert.
type BatchReport struct {
	Results  []AppendResult
	Inserted int
	Failed   int
}

// Add records one result and updates the counters.
func (b *BatchReport) Add(r AppendResult) {
	b.Results = append(b.Results, r)
	if r.OK() {
		b.Inserted++
	} else {
		b.Failed++
	}
}

// FileReport summarizes the ingestion of one staged file.
type FileReport struct {
	Path     string `json:"path"`
	Batches  int    `json:"batches"`
	Read     int    `json:"read"`
	Cleaned  int    `json:"cleaned"`
	Inserted int    `json:"inserted"`
	Failed   int    `json:"failed"`
	Err      error  `json:"-"`
}

// RunReport summarizes one ingestion run over the staging area.
type RunReport struct {
	RunID string       `json:"run_id"`
	Files []FileReport `json:"files"`
}

// Totals sums inserted and failed records over all files.
func (r RunReport) Totals() (inserted, failed int) {
	for _, f := range r.Files {
		inserted += f.Inserted
		failed += f.Failed
	}
	return inserted, failed
}
