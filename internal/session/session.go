// Package session models the memory of one listing-creation conversation:
// the items being listed, what has been said about each, the attributes
// inferred from that talk, and the full interaction history.
//
// The core is invoked from a stateless request boundary, so a Context never
// lives server-side between calls. The caller serializes it into the
// response, stores it, and sends it back whole on the next call.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JDelott/auctionfans-sub000/internal/form"
)

// Tag classifies what kind of event an interaction records.
type Tag string

const (
	TagUpload         Tag = "upload"
	TagItemAnalysis   Tag = "item_analysis"
	TagFieldUpdate    Tag = "field_update"
	TagBatchOperation Tag = "batch_operation"
)

// FieldChange captures one field transition inside an interaction.
type FieldChange struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// Interaction is one recorded utterance/response/field-change event.
// Immutable once created; append-only in both the session's and an item's
// history.
type Interaction struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"-"`
	Input        string                 `json:"input"`
	Response     string                 `json:"response"`
	FieldChanges map[string]FieldChange `json:"field_changes,omitempty"`
	Tag          Tag                    `json:"tag"`
}

// Attributes holds what has been inferred about one item so far.
type Attributes struct {
	Category        string   `json:"category,omitempty"`
	Brand           string   `json:"brand,omitempty"`
	ItemType        string   `json:"item_type,omitempty"`
	Era             string   `json:"era,omitempty"`
	Condition       string   `json:"condition,omitempty"`
	SpecialFeatures []string `json:"special_features,omitempty"`
}

// ItemContext is the per-item slice of session memory. It is created on the
// first association of text with an item and re-derived (never replaced) on
// every later interaction touching the item.
type ItemContext struct {
	ItemID          string
	ImageAnalysis   string
	UserDescription string
	Interactions    []Interaction
	Attributes      Attributes
	Confidence      map[string]float64
}

// Preferences aggregates session-global signals worth carrying between items.
type Preferences struct {
	DefaultDuration     string   `json:"default_duration,omitempty"`
	PreferredCategories []string `json:"preferred_categories,omitempty"`
	PricePatterns       []string `json:"price_patterns,omitempty"`
}

// Context is the full memory of one listing-creation session. Created once,
// mutated by every successful inference call, never deleted mid-session.
type Context struct {
	ID                 string
	StartedAt          time.Time
	InitialDescription string
	Preferences        Preferences
	History            []Interaction

	// Items keyed by item id, iterated in insertion order.
	itemOrder []string
	items     map[string]*ItemContext
}

// New creates a fresh session context.
func New(initialDescription string) *Context {
	return &Context{
		ID:                 uuid.NewString(),
		StartedAt:          time.Now().UTC(),
		InitialDescription: strings.TrimSpace(initialDescription),
		items:              make(map[string]*ItemContext),
	}
}

// Items returns the item contexts in insertion order.
func (c *Context) Items() []*ItemContext {
	out := make([]*ItemContext, 0, len(c.itemOrder))
	for _, id := range c.itemOrder {
		out = append(out, c.items[id])
	}
	return out
}

// Item returns the context for one item id, or nil.
func (c *Context) Item(itemID string) *ItemContext {
	return c.items[itemID]
}

// AddItem inserts or overwrites an item context and immediately runs
// attribute inference for it.
func (c *Context) AddItem(itemID, imageAnalysis, userDescription string) *ItemContext {
	if c.items == nil {
		c.items = make(map[string]*ItemContext)
	}
	if _, exists := c.items[itemID]; !exists {
		c.itemOrder = append(c.itemOrder, itemID)
	}
	item := &ItemContext{
		ItemID:          itemID,
		ImageAnalysis:   imageAnalysis,
		UserDescription: userDescription,
		Confidence:      make(map[string]float64),
	}
	c.items[itemID] = item
	c.inferAttributes(item)
	return item
}

// RecordInteraction stamps an id and timestamp, appends to the session
// history, and tries to associate the interaction with one item. When
// associated, it is appended to that item's history too and the item's
// attributes are re-derived.
func (c *Context) RecordInteraction(input, response string, fieldChanges map[string]FieldChange, tag Tag) Interaction {
	it := Interaction{
		ID:           uuid.NewString(),
		Timestamp:    c.nextTimestamp(),
		Input:        input,
		Response:     response,
		FieldChanges: fieldChanges,
		Tag:          tag,
	}
	c.History = append(c.History, it)
	c.absorbPreferences(fieldChanges)

	if item := c.associate(input); item != nil {
		item.Interactions = append(item.Interactions, it)
		c.absorbCategory(item, fieldChanges)
		c.inferAttributes(item)
	}

	return it
}

// nextTimestamp returns the current time, never earlier than the last
// recorded interaction. Timestamps must be non-decreasing within a history.
func (c *Context) nextTimestamp() time.Time {
	ts := time.Now().UTC()
	if n := len(c.History); n > 0 && ts.Before(c.History[n-1].Timestamp) {
		ts = c.History[n-1].Timestamp
	}
	return ts
}

// associate finds the first item the input plausibly refers to. Items are
// checked in insertion order: an inferred item-type or brand appearing in
// the input wins outright; otherwise two or more image-analysis tokens
// (longer than 3 characters) appearing in the input qualify. First
// qualifying item wins; ambiguity between items sharing tokens or brand is
// left unresolved.
func (c *Context) associate(input string) *ItemContext {
	lower := strings.ToLower(input)

	for _, id := range c.itemOrder {
		item := c.items[id]

		if t := strings.ToLower(item.Attributes.ItemType); t != "" && strings.Contains(lower, t) {
			return item
		}
		if b := strings.ToLower(item.Attributes.Brand); b != "" && strings.Contains(lower, b) {
			return item
		}

		matches := 0
		for _, token := range analysisTokens(item.ImageAnalysis) {
			if strings.Contains(lower, token) {
				matches++
				if matches >= 2 {
					return item
				}
			}
		}
	}
	return nil
}

// analysisTokens splits image-analysis text into lowercase tokens longer
// than 3 characters, stripped of surrounding punctuation.
func analysisTokens(text string) []string {
	var out []string
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		token := strings.Trim(raw, ".,;:!?()[]\"'")
		if len(token) > 3 {
			out = append(out, token)
		}
	}
	return out
}

// absorbPreferences folds field changes into session-global preferences.
func (c *Context) absorbPreferences(fieldChanges map[string]FieldChange) {
	for field, change := range fieldChanges {
		switch field {
		case form.FieldDurationDays:
			c.Preferences.DefaultDuration = change.To
		case form.FieldCategoryID:
			if !containsString(c.Preferences.PreferredCategories, change.To) {
				c.Preferences.PreferredCategories = append(c.Preferences.PreferredCategories, change.To)
			}
		case form.FieldStartingPrice, form.FieldReservePrice, form.FieldBuyNowPrice:
			c.Preferences.PricePatterns = append(c.Preferences.PricePatterns, field+"="+change.To)
		}
	}
}

// absorbCategory records a category choice on the associated item. Category
// has no keyword detector of its own; it comes from accepted field changes.
func (c *Context) absorbCategory(item *ItemContext, fieldChanges map[string]FieldChange) {
	if change, ok := fieldChanges[form.FieldCategoryID]; ok && change.To != "" {
		item.Attributes.Category = change.To
	}
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
