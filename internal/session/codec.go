package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// The wire form of a Context. The per-item associative container is carried
// as an ordered array of string-keyed entries rather than a native map, and
// timestamps travel as RFC 3339 strings, so the blob survives any transport
// that can round-trip JSON.

type wireContext struct {
	ID                 string            `json:"id"`
	StartedAt          string            `json:"started_at"`
	InitialDescription string            `json:"initial_description,omitempty"`
	Preferences        Preferences       `json:"preferences"`
	Items              []wireItem        `json:"items,omitempty"`
	History            []wireInteraction `json:"history,omitempty"`
}

type wireItem struct {
	ItemID          string             `json:"item_id"`
	ImageAnalysis   string             `json:"image_analysis,omitempty"`
	UserDescription string             `json:"user_description,omitempty"`
	Attributes      Attributes         `json:"attributes"`
	Confidence      map[string]float64 `json:"confidence,omitempty"`
	Interactions    []wireInteraction  `json:"interactions,omitempty"`
}

type wireInteraction struct {
	ID           string                 `json:"id"`
	Timestamp    string                 `json:"timestamp"`
	Input        string                 `json:"input"`
	Response     string                 `json:"response,omitempty"`
	FieldChanges map[string]FieldChange `json:"field_changes,omitempty"`
	Tag          Tag                    `json:"tag"`
}

const wireTimeFormat = time.RFC3339Nano

// Serialize converts the context into a transport-safe JSON blob. The caller
// stores it and resends it whole on the next call; the core retains nothing.
func (c *Context) Serialize() ([]byte, error) {
	w := wireContext{
		ID:                 c.ID,
		StartedAt:          c.StartedAt.Format(wireTimeFormat),
		InitialDescription: c.InitialDescription,
		Preferences:        c.Preferences,
		History:            wireInteractions(c.History),
	}
	for _, id := range c.itemOrder {
		item := c.items[id]
		w.Items = append(w.Items, wireItem{
			ItemID:          item.ItemID,
			ImageAnalysis:   item.ImageAnalysis,
			UserDescription: item.UserDescription,
			Attributes:      item.Attributes,
			Confidence:      item.Confidence,
			Interactions:    wireInteractions(item.Interactions),
		})
	}
	return json.Marshal(w)
}

// Deserialize reconstructs a context from a blob produced by Serialize.
func Deserialize(blob []byte) (*Context, error) {
	var w wireContext
	if err := json.Unmarshal(blob, &w); err != nil {
		return nil, fmt.Errorf("decoding session context: %w", err)
	}
	if w.ID == "" {
		return nil, fmt.Errorf("session context blob has no id")
	}

	startedAt, err := time.Parse(wireTimeFormat, w.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing session start time %q: %w", w.StartedAt, err)
	}

	c := &Context{
		ID:                 w.ID,
		StartedAt:          startedAt,
		InitialDescription: w.InitialDescription,
		Preferences:        w.Preferences,
		items:              make(map[string]*ItemContext, len(w.Items)),
	}

	c.History, err = parseInteractions(w.History)
	if err != nil {
		return nil, err
	}

	for _, wi := range w.Items {
		if _, dup := c.items[wi.ItemID]; dup {
			return nil, fmt.Errorf("duplicate item id %q in session context", wi.ItemID)
		}
		item := &ItemContext{
			ItemID:          wi.ItemID,
			ImageAnalysis:   wi.ImageAnalysis,
			UserDescription: wi.UserDescription,
			Attributes:      wi.Attributes,
			Confidence:      wi.Confidence,
		}
		if item.Confidence == nil {
			item.Confidence = make(map[string]float64)
		}
		item.Interactions, err = parseInteractions(wi.Interactions)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", wi.ItemID, err)
		}
		c.itemOrder = append(c.itemOrder, wi.ItemID)
		c.items[wi.ItemID] = item
	}

	return c, nil
}

func wireInteractions(list []Interaction) []wireInteraction {
	if len(list) == 0 {
		return nil
	}
	out := make([]wireInteraction, 0, len(list))
	for _, it := range list {
		out = append(out, wireInteraction{
			ID:           it.ID,
			Timestamp:    it.Timestamp.Format(wireTimeFormat),
			Input:        it.Input,
			Response:     it.Response,
			FieldChanges: it.FieldChanges,
			Tag:          it.Tag,
		})
	}
	return out
}

func parseInteractions(list []wireInteraction) ([]Interaction, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]Interaction, 0, len(list))
	for _, wi := range list {
		ts, err := time.Parse(wireTimeFormat, wi.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("parsing interaction %s timestamp %q: %w", wi.ID, wi.Timestamp, err)
		}
		out = append(out, Interaction{
			ID:           wi.ID,
			Timestamp:    ts,
			Input:        wi.Input,
			Response:     wi.Response,
			FieldChanges: wi.FieldChanges,
			Tag:          wi.Tag,
		})
	}
	return out, nil
}
