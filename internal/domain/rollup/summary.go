package rollup

import "time"

// RunSummary reports the record counts of one pipeline run.
type RunSummary struct {
	SourceType string `json:"source_type"`
	Collection string `json:"collection"`

	HeadersProcessed  int `json:"headers_processed"`
	ItemsMerged       int `json:"items_merged"`
	CategoriesMerged  int `json:"categories_merged"`
	RecordsUpserted   int `json:"records_upserted"`
	Inserted          int `json:"inserted"`
	Replaced          int `json:"replaced"`
	OrphanItems       int `json:"orphan_items"`
	OrphanCategories  int `json:"orphan_categories"`
	UnbalancedRecords int `json:"unbalanced_identities"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
}
