package rollup

import (
	"time"

	"github.com/google/uuid"
)

// SourceType names a registered source schema. The built-in values form a closed
// set; additional types may be registered from definition files.
type SourceType string

const (
	SourceVulnerability SourceType = "vulnerability"
	SourceCompliance    SourceType = "compliance"
)

// BuiltinSourceTypes lists the source types compiled into the binary.
func BuiltinSourceTypes() []SourceType {
	return []SourceType{SourceVulnerability, SourceCompliance}
}

// CountField is the field every grouped item/category record carries.
const CountField = "count"

// RawRecord is one grouped record as returned by a source store, keyed by raw field name.
type RawRecord map[string]any

// Attributes holds typed descriptive values keyed by canonical field name.
// Values are string, civil.Date, int64, float64, bool or nil.
type Attributes map[string]any

// HeaderRecord carries the descriptive attributes of one identity
// (first value seen within the identity group).
type HeaderRecord struct {
	Identity   Identity   `json:"identity" validate:"required"`
	Attributes Attributes `json:"attributes"`
}

// ItemizedEntity is one (identity, sub-key) group with its occurrence count.
type ItemizedEntity struct {
	Identity   Identity   `json:"-"`
	Name       string     `json:"name"`
	Count      int64      `json:"count" validate:"gte=1"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// CategoryCount is one (identity, category) group with its occurrence count.
type CategoryCount struct {
	Identity Identity `json:"-"`
	Category string   `json:"category"`
	Count    int64    `json:"count" validate:"gte=1"`
}

// CompositeRecord is the merged per-identity output handed to the target store.
type CompositeRecord struct {
	SourceType SourceType       `json:"source_type"`
	Key        string           `json:"identity_key"`
	Identity   Identity         `json:"identity"`
	Header     Attributes       `json:"header"`
	Items      []ItemizedEntity `json:"items"`
	Categories []CategoryCount  `json:"categories"`
	LoadedAt   time.Time        `json:"loaded_at"`
}

// NewCompositeRecord starts a composite from a header with empty item and category lists.
func NewCompositeRecord(sourceType SourceType, h HeaderRecord, loadedAt time.Time) *CompositeRecord {
	return &CompositeRecord{
		SourceType: sourceType,
		Key:        h.Identity.Key(),
		Identity:   h.Identity,
		Header:     h.Attributes,
		Items:      []ItemizedEntity{},
		Categories: []CategoryCount{},
		LoadedAt:   loadedAt,
	}
}

func (c *CompositeRecord) ItemTotal() int64 {
	var n int64
	for _, it := range c.Items {
		n += it.Count
	}
	return n
}

func (c *CompositeRecord) CategoryTotal() int64 {
	var n int64
	for _, cat := range c.Categories {
		n += cat.Count
	}
	return n
}

// StoredRecord is a CompositeRecord as held by a target store, with the
// store-assigned id and optimistic version.
type StoredRecord struct {
	ID      uuid.UUID `json:"id"`
	Version int       `json:"version"`
	CompositeRecord
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
