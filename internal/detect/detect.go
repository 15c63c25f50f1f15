// Package detect classifies which listing form fields a free-form utterance
// is likely about. It is a pure keyword/pattern classifier: a fixed table of
// trigger phrases per field, plus two cross-cutting rules for prices and
// video timestamps. No LLM call is made here.
package detect

import (
	"regexp"
	"strings"

	"github.com/JDelott/auctionfans-sub000/internal/form"
)

// fieldTriggers maps each field to its trigger phrases, in detection order.
// A field qualifies if any phrase is a case-insensitive substring of the
// utterance.
var fieldTriggers = []struct {
	field    string
	triggers []string
}{
	{form.FieldTitle, []string{"title", "call it", "name it", "headline"}},
	{form.FieldDescription, []string{"description", "describe", "details", "tell buyers"}},
	{form.FieldCategoryID, []string{"category", "categorize", "section", "file it under"}},
	{form.FieldCondition, []string{"condition", "mint", "brand new", "like new", "excellent", "decent", "worn", "damaged", "shape it's in"}},
	{form.FieldStartingPrice, []string{"starting price", "start price", "starting bid", "opening bid", "start at", "start the bidding"}},
	{form.FieldReservePrice, []string{"reserve", "minimum price", "won't sell below", "no lower than"}},
	{form.FieldBuyNowPrice, []string{"buy now", "buy it now", "buyout", "instant purchase"}},
	{form.FieldDurationDays, []string{"duration", "day auction", "days", "auction length", "run the auction", "how long"}},
	{form.FieldVideoURL, []string{"video url", "video link", "youtube", "youtu.be", "link to the video", "clip link"}},
	{form.FieldVideoTimestamp, []string{"timestamp", "time stamp", "seconds in", "minute mark", "at the mark", "into the video"}},
}

// currencyCues qualify starting_price when paired with a digit.
var currencyCues = []string{"$", "€", "£", "dollar", "buck", "usd", "price", "cost"}

var (
	digitRE     = regexp.MustCompile(`\d`)
	clockTimeRE = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	bareTimeRE  = regexp.MustCompile(`\b\d+\s?(min|sec)\b`)
)

// DefaultFields is the fallback candidate set for utterances that trigger
// nothing: treat them as a general item description.
var DefaultFields = []string{
	form.FieldTitle,
	form.FieldDescription,
	form.FieldCategoryID,
	form.FieldCondition,
}

// Fields returns the ordered, duplicate-free list of form fields the
// utterance appears to be about. An empty result means the caller should
// fall back to DefaultFields.
func Fields(utterance string) []string {
	lower := strings.ToLower(utterance)

	var out []string
	seen := make(map[string]bool)
	add := func(field string) {
		if !seen[field] {
			seen[field] = true
			out = append(out, field)
		}
	}

	for _, ft := range fieldTriggers {
		for _, trigger := range ft.triggers {
			if strings.Contains(lower, trigger) {
				add(ft.field)
				break
			}
		}
	}

	// A digit next to currency or price talk means a starting price even
	// without an explicit trigger phrase.
	if digitRE.MatchString(lower) {
		for _, cue := range currencyCues {
			if strings.Contains(lower, cue) {
				add(form.FieldStartingPrice)
				break
			}
		}
	}

	// Clock-style times and minute/second talk mean a video timestamp.
	if clockTimeRE.MatchString(lower) ||
		strings.Contains(lower, "minute") ||
		strings.Contains(lower, "second") ||
		bareTimeRE.MatchString(lower) {
		add(form.FieldVideoTimestamp)
	}

	return out
}

// Mentions reports whether the utterance explicitly names the field or one
// of its trigger phrases. Used by the extraction guard: an already-filled
// field is only re-extracted when the utterance mentions it.
func Mentions(utterance, field string) bool {
	lower := strings.ToLower(utterance)
	if strings.Contains(lower, strings.ToLower(field)) {
		return true
	}
	if spaced := strings.ReplaceAll(field, "_", " "); strings.Contains(lower, spaced) {
		return true
	}
	for _, ft := range fieldTriggers {
		if ft.field != field {
			continue
		}
		for _, trigger := range ft.triggers {
			if strings.Contains(lower, trigger) {
				return true
			}
		}
	}
	return false
}
