package session

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JDelott/auctionfans-sub000/internal/form"
)

const (
	recentItemInteractions    = 3
	recentSessionInteractions = 5
	recentFieldChanges        = 3
)

// ContextForAI renders a plain-text summary of the session for use as
// grounding inside a completion prompt. The text is write-only: it is never
// parsed back. Pass an empty itemID for a session-only summary.
func (c *Context) ContextForAI(itemID string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Listing session %s started %s: %d item(s), %d interaction(s).\n",
		c.ID, c.StartedAt.Format("2006-01-02 15:04"), len(c.itemOrder), len(c.History))
	if c.InitialDescription != "" {
		fmt.Fprintf(&sb, "Initial description: %s\n", c.InitialDescription)
	}
	if c.Preferences.DefaultDuration != "" {
		fmt.Fprintf(&sb, "Preferred auction duration: %s days\n", c.Preferences.DefaultDuration)
	}
	if len(c.Preferences.PreferredCategories) > 0 {
		fmt.Fprintf(&sb, "Categories used so far: %s\n", strings.Join(c.Preferences.PreferredCategories, ", "))
	}

	if item := c.items[itemID]; item != nil {
		fmt.Fprintf(&sb, "\nItem %s:\n", item.ItemID)
		if item.ImageAnalysis != "" {
			fmt.Fprintf(&sb, "  Image analysis: %s\n", item.ImageAnalysis)
		}
		if item.UserDescription != "" {
			fmt.Fprintf(&sb, "  Seller description: %s\n", item.UserDescription)
		}
		if attrs := renderAttributes(item.Attributes); attrs != "" {
			fmt.Fprintf(&sb, "  Inferred: %s\n", attrs)
		}
		if len(item.Interactions) > 0 {
			sb.WriteString("  Recent item interactions:\n")
			for _, it := range lastInteractions(item.Interactions, recentItemInteractions) {
				fmt.Fprintf(&sb, "  - [%s] %s\n", it.Tag, summarizeInteraction(it))
			}
		}
	}

	if len(c.History) > 0 {
		sb.WriteString("\nRecent session interactions:\n")
		for _, it := range lastInteractions(c.History, recentSessionInteractions) {
			fmt.Fprintf(&sb, "- [%s] %s\n", it.Tag, summarizeInteraction(it))
		}
	}

	return sb.String()
}

// FieldContext renders the last few prior changes to one field plus the
// item's inferred type/category/brand, for priming field-specific prompts.
func (c *Context) FieldContext(field, itemID string) string {
	var sb strings.Builder

	var changes []string
	for _, it := range c.History {
		if change, ok := it.FieldChanges[field]; ok {
			changes = append(changes, fmt.Sprintf("%q -> %q (%s)", change.From, change.To, change.Reason))
		}
	}
	if n := len(changes); n > recentFieldChanges {
		changes = changes[n-recentFieldChanges:]
	}
	if len(changes) > 0 {
		fmt.Fprintf(&sb, "Prior %s changes: %s\n", field, strings.Join(changes, "; "))
	}

	if item := c.items[itemID]; item != nil {
		var hints []string
		if item.Attributes.ItemType != "" {
			hints = append(hints, "type="+item.Attributes.ItemType)
		}
		if item.Attributes.Category != "" {
			hints = append(hints, "category="+item.Attributes.Category)
		}
		if item.Attributes.Brand != "" {
			hints = append(hints, "brand="+item.Attributes.Brand)
		}
		if len(hints) > 0 {
			fmt.Fprintf(&sb, "Item signals: %s\n", strings.Join(hints, ", "))
		}
	}

	return sb.String()
}

func renderAttributes(a Attributes) string {
	var parts []string
	for _, kv := range []struct{ k, v string }{
		{AttrCategory, a.Category},
		{AttrBrand, a.Brand},
		{AttrItemType, a.ItemType},
		{AttrEra, a.Era},
		{AttrCondition, a.Condition},
	} {
		if kv.v != "" {
			parts = append(parts, kv.k+"="+kv.v)
		}
	}
	if len(a.SpecialFeatures) > 0 {
		parts = append(parts, "features="+strings.Join(a.SpecialFeatures, "/"))
	}
	return strings.Join(parts, ", ")
}

func summarizeInteraction(it Interaction) string {
	input := it.Input
	if len(input) > 120 {
		// Back up to a rune boundary so the cut never produces invalid UTF-8.
		cut := 120
		for cut > 0 && !utf8.RuneStart(input[cut]) {
			cut--
		}
		input = input[:cut] + "…"
	}
	if len(it.FieldChanges) == 0 {
		return input
	}
	var fields []string
	for _, f := range form.Fields {
		if _, ok := it.FieldChanges[f]; ok {
			fields = append(fields, f)
		}
	}
	return fmt.Sprintf("%s (changed: %s)", input, strings.Join(fields, ", "))
}

func lastInteractions(list []Interaction, n int) []Interaction {
	if len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}
