package assist

import (
	"fmt"
	"strings"

	"github.com/JDelott/auctionfans-sub000/internal/form"
	"github.com/JDelott/auctionfans-sub000/internal/session"
)

const fieldSystemPrompt = `You extract one auction listing field value from what a seller says.
Answer with the value only: no explanation, no labels, no markdown.
If the seller's words contain nothing usable for the field, answer exactly: none`

// fieldInstructions states the extraction rule per field. The instruction
// carries the unit conversions (e.g. "1:35" to seconds) so the validator
// can stay a pure format check.
var fieldInstructions = map[string]string{
	form.FieldTitle:          "Write a listing title for the item, at most 8 words.",
	form.FieldDescription:    "Write a buyer-facing listing description based on what the seller said. Several sentences are fine.",
	form.FieldCategoryID:     "Pick the single best category for the item. Answer with the category id exactly as listed.",
	form.FieldCondition:      "State the item condition. Answer with exactly one of: new, like-new, good, fair, poor.",
	form.FieldStartingPrice:  "Extract the starting price (the opening bid amount). Answer with the number only, no currency symbol.",
	form.FieldReservePrice:   "Extract the reserve price (the minimum the seller will accept). Answer with the number only.",
	form.FieldBuyNowPrice:    "Extract the buy-now price (the instant purchase amount). Answer with the number only.",
	form.FieldDurationDays:   "Extract the auction duration in days. Answer with one of: 1, 3, 5, 7, 10, 14. Convert words like 'a week' to 7.",
	form.FieldVideoURL:       "Extract the video URL the seller mentioned. Answer with the URL only.",
	form.FieldVideoTimestamp: "Extract where in the video the item appears, converted to whole seconds. '1:35' means 95. 'two minutes in' means 120. Answer with the integer only.",
}

// buildFieldPrompt assembles one field-specific instruction: the rule, the
// session's field history and item signals, the category catalog when
// relevant, and the utterance itself.
func buildFieldPrompt(field string, req Request, sess *session.Context) string {
	var sb strings.Builder

	sb.WriteString(fieldInstructions[field])
	sb.WriteString("\n")

	if fc := sess.FieldContext(field, req.ItemID); fc != "" {
		sb.WriteString("\n")
		sb.WriteString(fc)
	}

	if field == form.FieldCategoryID && len(req.Categories) > 0 {
		sb.WriteString("\nCategories:\n")
		for _, c := range req.Categories {
			fmt.Fprintf(&sb, "- %s: %s\n", c.ID, c.Name)
		}
	}

	if current := strings.TrimSpace(req.Form[field]); current != "" {
		fmt.Fprintf(&sb, "\nCurrent value: %s\n", current)
	}

	fmt.Fprintf(&sb, "\nSeller said: %s\n", req.Utterance)
	return sb.String()
}

const combinedSystemPrompt = `You fill auction listing form fields from what a seller says, using the session context for grounding.
Respond with a single JSON object and nothing else:
{
  "formUpdates": {"field_name": "value"},
  "fieldUpdates": [{"field": "field_name", "value": "value", "reason": "why", "confidence": 0.8}]
}
Only include fields you can actually fill from the seller's words.`

// buildCombinedPrompt assembles the whole-response prompt used by combined
// mode: grounding text, current form state, catalog, and the utterance.
func buildCombinedPrompt(req Request, grounding string, fields []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Fill these listing fields if the seller's words support them: %s\n", strings.Join(fields, ", "))

	if grounding != "" {
		sb.WriteString("\nSession context:\n")
		sb.WriteString(grounding)
	}

	var filled []string
	for _, f := range form.Fields {
		if v := strings.TrimSpace(req.Form[f]); v != "" {
			filled = append(filled, f+"="+v)
		}
	}
	if len(filled) > 0 {
		fmt.Fprintf(&sb, "\nAlready filled: %s\n", strings.Join(filled, ", "))
	}

	if len(req.Categories) > 0 {
		sb.WriteString("\nCategories:\n")
		for _, c := range req.Categories {
			fmt.Fprintf(&sb, "- %s: %s\n", c.ID, c.Name)
		}
	}

	fmt.Fprintf(&sb, "\nSeller said: %s\n", req.Utterance)
	return sb.String()
}

// buildPlainPrompt is the non-contextual last-resort prompt used by the
// endpoint fallback: same utterance and form, no session grounding.
func buildPlainPrompt(req Request, fields []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fill these listing fields from the seller's words: %s\n", strings.Join(fields, ", "))
	fmt.Fprintf(&sb, "\nSeller said: %s\n", req.Utterance)
	return sb.String()
}
