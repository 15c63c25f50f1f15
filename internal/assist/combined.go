package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/JDelott/auctionfans-sub000/internal/detect"
	"github.com/JDelott/auctionfans-sub000/internal/form"
	"github.com/JDelott/auctionfans-sub000/internal/llm"
)

// combinedPayload is the structured object combined mode asks the
// completion service for. The service offers no schema guarantee, so this
// shape is a request, not a contract: parsing runs through the repair
// chain below.
type combinedPayload struct {
	FormUpdates  map[string]string `json:"formUpdates"`
	FieldUpdates []FieldUpdate     `json:"fieldUpdates"`
}

// parseStrategy is one rung of the repair chain. Strategies share a single
// contract (raw text in, payload out) and run in order until one succeeds.
type parseStrategy struct {
	name string
	fn   func(raw string) (*combinedPayload, error)
}

// parseStrategies orders the chain: direct parse, truncation repair, then
// regex salvage.
var parseStrategies = []parseStrategy{
	{"direct", parseCombinedDirect},
	{"truncation_repair", parseCombinedRepaired},
	{"regex_salvage", parseCombinedRegex},
}

// extractCombined runs whole-response extraction with the full fallback
// chain. It never fails: total upstream failure produces empty updates.
// The third return is the raw completion text, for the interaction record.
func (e *Engine) extractCombined(ctx context.Context, req Request, grounding string) (map[string]string, []FieldUpdate, string) {
	fields := detect.DefaultFields

	raw, err := e.provider.Complete(ctx, buildCombinedPrompt(req, grounding, fields), llm.CompletionOpts{
		MaxTokens:   e.opts.CombinedMaxTokens,
		Temperature: 0.2,
		Format:      "json",
		System:      combinedSystemPrompt,
	})
	if err != nil {
		// Endpoint fallback: one retry without session grounding.
		fmt.Fprintf(os.Stderr, "Warning: combined completion failed, retrying without context: %v\n", err)
		raw, err = e.provider.Complete(ctx, buildPlainPrompt(req, fields), llm.CompletionOpts{
			MaxTokens:   e.opts.CombinedMaxTokens,
			Temperature: 0.2,
			Format:      "json",
			System:      combinedSystemPrompt,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: fallback completion failed, returning empty updates: %v\n", err)
			return map[string]string{}, nil, ""
		}
	}

	payload := parseWithRepairChain(raw)
	if payload == nil {
		return map[string]string{}, nil, raw
	}

	updates, itemized := e.validatePayload(payload, req)
	return updates, itemized, raw
}

// parseWithRepairChain tries each strategy in order and returns the first
// payload, or nil when even regex salvage finds nothing.
func parseWithRepairChain(raw string) *combinedPayload {
	cleaned := stripFences(strings.TrimSpace(raw))
	for _, s := range parseStrategies {
		payload, err := s.fn(cleaned)
		if err == nil && payload != nil {
			return payload
		}
	}
	return nil
}

// parseCombinedDirect is the optimistic path: the text is the requested
// JSON object.
func parseCombinedDirect(raw string) (*combinedPayload, error) {
	var p combinedPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("direct parse: %w", err)
	}
	return &p, nil
}

// parseCombinedRepaired handles token-budget truncation. When the text does
// not end with the object's closing brace, cut at the last closing brace
// present; if a fieldUpdates key opened before that point, re-close the
// array and the outer object and parse again. This recovers every complete
// fieldUpdates entry before the cut.
func parseCombinedRepaired(raw string) (*combinedPayload, error) {
	if strings.HasSuffix(raw, "}") {
		return nil, fmt.Errorf("not truncated")
	}
	idx := strings.LastIndex(raw, "}")
	if idx < 0 {
		return nil, fmt.Errorf("no closing brace to repair from")
	}
	if !strings.Contains(raw[:idx], `"fieldUpdates"`) {
		return nil, fmt.Errorf("no fieldUpdates key before the cut")
	}
	repaired := raw[:idx+1] + "]}"
	var p combinedPayload
	if err := json.Unmarshal([]byte(repaired), &p); err != nil {
		return nil, fmt.Errorf("repaired parse: %w", err)
	}
	return &p, nil
}

var (
	descriptionSalvageRE = regexp.MustCompile(`"description"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	fieldPairSalvageRE   = regexp.MustCompile(`\{\s*"field"\s*:\s*"([^"]+)"\s*,\s*"value"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// parseCombinedRegex is the last parsing resort: pull a description value
// and any {field, value} pairs out of the raw text by pattern, wherever
// they sit.
func parseCombinedRegex(raw string) (*combinedPayload, error) {
	p := &combinedPayload{FormUpdates: make(map[string]string)}

	if m := descriptionSalvageRE.FindStringSubmatch(raw); m != nil {
		p.FormUpdates[form.FieldDescription] = unescapeJSONString(m[1])
	}

	for _, m := range fieldPairSalvageRE.FindAllStringSubmatch(raw, -1) {
		p.FieldUpdates = append(p.FieldUpdates, FieldUpdate{
			Field:  m[1],
			Value:  unescapeJSONString(m[2]),
			Reason: "recovered from malformed response",
		})
	}

	if len(p.FormUpdates) == 0 && len(p.FieldUpdates) == 0 {
		return nil, fmt.Errorf("nothing salvageable")
	}
	return p, nil
}

// unescapeJSONString decodes backslash escapes captured by the salvage
// patterns. Falls back to the raw capture if it will not decode.
func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

// validatePayload runs every salvaged value through its field validator
// and merges flat and itemized updates: an itemized entry wins a key
// collision because it carries an explicit reason and confidence. The
// filled-field guard applies here exactly as in the per-field pipeline:
// a field the form already holds is dropped unless the utterance names it.
func (e *Engine) validatePayload(p *combinedPayload, req Request) (map[string]string, []FieldUpdate) {
	updates := make(map[string]string)
	var itemized []FieldUpdate

	guarded := func(field string) bool {
		return req.Form.IsFilled(field) && !detect.Mentions(req.Utterance, field)
	}

	for field, value := range p.FormUpdates {
		if guarded(field) {
			continue
		}
		validated, err := form.Validate(field, value, req.Categories)
		if err != nil {
			continue
		}
		updates[field] = validated
	}

	for _, fu := range p.FieldUpdates {
		if guarded(fu.Field) {
			continue
		}
		validated, err := form.Validate(fu.Field, fu.Value, req.Categories)
		if err != nil {
			continue
		}
		fu.Value = validated
		updates[fu.Field] = validated
		itemized = append(itemized, fu)
	}

	return updates, itemized
}
