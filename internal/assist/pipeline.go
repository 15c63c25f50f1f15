package assist

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/JDelott/auctionfans-sub000/internal/detect"
	"github.com/JDelott/auctionfans-sub000/internal/form"
	"github.com/JDelott/auctionfans-sub000/internal/llm"
	"github.com/JDelott/auctionfans-sub000/internal/session"
)

// fieldResult pairs one candidate's proposed update with the raw
// completion text behind it. A nil update with non-empty raw means the
// response arrived but was dropped.
type fieldResult struct {
	update *FieldUpdate
	raw    string
}

// extractFields runs the per-field pipeline over the candidate list and
// returns the merged flat updates plus the itemized entries behind them.
// Candidates have no data dependency on one another, so their completion
// calls may run concurrently; merge order stays detection order either way.
// The third return joins the raw completions per field, for the
// interaction record.
func (e *Engine) extractFields(ctx context.Context, req Request, sess *session.Context, candidates []string) (map[string]string, []FieldUpdate, string) {
	results := make([]fieldResult, len(candidates))

	run := func(i int, field string) {
		results[i] = e.extractOneField(ctx, req, sess, field)
	}

	if e.opts.Concurrent && len(candidates) > 1 {
		var wg sync.WaitGroup
		for i, field := range candidates {
			wg.Add(1)
			go func(i int, field string) {
				defer wg.Done()
				run(i, field)
			}(i, field)
		}
		wg.Wait()
	} else {
		for i, field := range candidates {
			run(i, field)
		}
	}

	updates := make(map[string]string)
	var itemized []FieldUpdate
	var responses []string
	for i, r := range results {
		if r.raw != "" {
			responses = append(responses, candidates[i]+": "+strings.TrimSpace(r.raw))
		}
		if r.update == nil {
			continue
		}
		updates[r.update.Field] = r.update.Value
		itemized = append(itemized, *r.update)
	}
	return updates, itemized, strings.Join(responses, "\n")
}

// extractOneField extracts and validates a single field value. A nil
// update is normal operation: the guard skipped it, the completion call
// failed, or the validator rejected the text.
func (e *Engine) extractOneField(ctx context.Context, req Request, sess *session.Context, field string) fieldResult {
	// Guard: never clobber an already-filled field unless the utterance
	// explicitly names it or one of its trigger phrases.
	if req.Form.IsFilled(field) && !detect.Mentions(req.Utterance, field) {
		return fieldResult{}
	}

	prompt := buildFieldPrompt(field, req, sess)

	raw, err := e.provider.Complete(ctx, prompt, llm.CompletionOpts{
		MaxTokens:   e.opts.FieldMaxTokens,
		Temperature: 0.1,
		System:      fieldSystemPrompt,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: completion for %s failed, dropping field: %v\n", field, err)
		return fieldResult{}
	}

	value := cleanFieldResponse(field, raw)
	if value == "" || strings.EqualFold(value, "none") || strings.EqualFold(value, "n/a") {
		return fieldResult{raw: raw}
	}

	validated, err := form.Validate(field, value, req.Categories)
	if err != nil {
		// Validator rejection silently drops this field only.
		return fieldResult{raw: raw}
	}

	return fieldResult{
		update: &FieldUpdate{
			Field:      field,
			Value:      validated,
			Reason:     fmt.Sprintf("extracted from: %s", truncate(req.Utterance, 80)),
			Confidence: 0.8,
		},
		raw: raw,
	}
}

// cleanFieldResponse normalizes raw completion text into a candidate value:
// markdown fences and surrounding quotes stripped, and for single-line
// fields only the first line kept.
func cleanFieldResponse(field, raw string) string {
	v := stripFences(strings.TrimSpace(raw))
	if field != form.FieldDescription {
		if idx := strings.IndexByte(v, '\n'); idx >= 0 {
			v = v[:idx]
		}
	}
	v = strings.TrimSpace(v)
	v = strings.Trim(v, `"'`)
	return strings.TrimSpace(v)
}

// stripFences removes a markdown code fence wrapper if present.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	start, end := 0, len(lines)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if start == 0 {
				start = i + 1
			} else {
				end = i
				break
			}
		}
	}
	if start > 0 && end > start {
		return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
	}
	return s
}

// truncate shortens s to at most maxLen bytes, backing up so the cut
// never splits a multi-byte rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
