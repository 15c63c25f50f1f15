// Package form defines the auction listing form: its fields, the category
// catalog, and per-field domain validators.
//
// Validators are pure format/range checks. They guarantee that a value is
// well-formed for its field, never that it is semantically correct. Every
// value accepted into a snapshot must have passed its validator, regardless
// of which extraction path produced it.
package form

import "strings"

// Field names for the listing form.
const (
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldCategoryID     = "category_id"
	FieldCondition      = "condition"
	FieldStartingPrice  = "starting_price"
	FieldReservePrice   = "reserve_price"
	FieldBuyNowPrice    = "buy_now_price"
	FieldDurationDays   = "duration_days"
	FieldVideoURL       = "video_url"
	FieldVideoTimestamp = "video_timestamp"
)

// Fields lists every form field in display order.
var Fields = []string{
	FieldTitle,
	FieldDescription,
	FieldCategoryID,
	FieldCondition,
	FieldStartingPrice,
	FieldReservePrice,
	FieldBuyNowPrice,
	FieldDurationDays,
	FieldVideoURL,
	FieldVideoTimestamp,
}

// Category is one entry of the externally supplied category catalog.
// A category_id value is only accepted if it matches an ID from the
// catalog supplied for the current call.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is a flat map of field names to current string values.
// It is owned by the caller; the core reads it and returns update maps
// rather than mutating it in place.
type Snapshot map[string]string

// Clone returns a copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// IsFilled reports whether the snapshot holds a non-empty value for field.
func (s Snapshot) IsFilled(field string) bool {
	return strings.TrimSpace(s[field]) != ""
}

// IsKnownField reports whether name is a listing form field.
func IsKnownField(name string) bool {
	for _, f := range Fields {
		if f == name {
			return true
		}
	}
	return false
}
