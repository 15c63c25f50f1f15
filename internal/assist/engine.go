// Package assist is the inference core of the listing assistant. One call
// takes a free-form utterance plus the current form snapshot (and the
// caller-held session context), decides which fields the utterance is
// about, extracts validated values for them through the completion
// service, and returns the merged updates together with the re-serialized
// session context.
//
// Extraction failure is never fatal: whatever the completion service
// returns (or fails to return), the caller gets a well-formed result, at
// worst with empty updates and an unchanged context.
package assist

import (
	"context"
	"fmt"

	"github.com/JDelott/auctionfans-sub000/internal/detect"
	"github.com/JDelott/auctionfans-sub000/internal/form"
	"github.com/JDelott/auctionfans-sub000/internal/llm"
	"github.com/JDelott/auctionfans-sub000/internal/session"
)

// Request is one inference call from the stateless request boundary.
type Request struct {
	Utterance          string          `json:"utterance"`
	Form               form.Snapshot   `json:"form"`
	Categories         []form.Category `json:"categories,omitempty"`
	Context            []byte          `json:"context,omitempty"`             // serialized session context from the previous call
	InitialDescription string          `json:"initial_description,omitempty"` // used only when Context is empty
	ItemID             string          `json:"item_id,omitempty"`
	TargetField        string          `json:"target_field,omitempty"` // explicit single-field edit
}

// FieldUpdate is one itemized proposed change. Confidence is informational
// only; it never gates whether the value is applied.
type FieldUpdate struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Result is what every inference call returns, including failed ones.
type Result struct {
	Success      bool              `json:"success"`
	Updates      map[string]string `json:"updates"`
	FieldUpdates []FieldUpdate     `json:"field_updates,omitempty"`
	ContextUsed  string            `json:"context_used,omitempty"` // grounding text, for diagnostics
	Context      []byte            `json:"context"`                // re-serialized session context for the next call
}

// Options tunes the engine.
type Options struct {
	FieldMaxTokens    int  // token budget per single-field completion
	CombinedMaxTokens int  // token budget for combined-mode completions
	Concurrent        bool // issue per-field completions concurrently
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		FieldMaxTokens:    120,
		CombinedMaxTokens: 800,
		Concurrent:        true,
	}
}

// Engine runs inference calls against one completion provider. It holds no
// session state: the context travels with every request.
type Engine struct {
	provider llm.Provider
	opts     Options
}

// NewEngine creates an engine backed by the given completion provider.
func NewEngine(provider llm.Provider, opts Options) *Engine {
	if opts.FieldMaxTokens <= 0 {
		opts.FieldMaxTokens = DefaultOptions().FieldMaxTokens
	}
	if opts.CombinedMaxTokens <= 0 {
		opts.CombinedMaxTokens = DefaultOptions().CombinedMaxTokens
	}
	return &Engine{provider: provider, opts: opts}
}

// Process runs one inference call. The returned error covers caller
// mistakes only (a corrupt context blob); completion-service failure of
// any kind still yields a successful Result with empty updates.
func (e *Engine) Process(ctx context.Context, req Request) (*Result, error) {
	sess, err := e.restoreSession(req)
	if err != nil {
		return nil, err
	}

	grounding := sess.ContextForAI(req.ItemID)

	var (
		updates  map[string]string
		itemized []FieldUpdate
		response string
		tag      session.Tag
	)

	if candidates := e.candidateFields(req); len(candidates) > 0 {
		updates, itemized, response = e.extractFields(ctx, req, sess, candidates)
		tag = session.TagFieldUpdate
	} else {
		// Nothing triggered: treat the utterance as a general item
		// description and ask for everything at once.
		updates, itemized, response = e.extractCombined(ctx, req, grounding)
		tag = session.TagItemAnalysis
	}

	result := &Result{
		Success:      true,
		Updates:      updates,
		FieldUpdates: itemized,
		ContextUsed:  grounding,
	}

	// Context is mutated only after a validated extraction succeeded.
	if len(updates) > 0 {
		changes := e.applyUpdates(req.Form, updates, itemized)
		if len(changes) > 0 {
			sess.RecordInteraction(req.Utterance, response, changes, tag)
		}
	}

	blob, err := sess.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serializing session context: %w", err)
	}
	result.Context = blob

	return result, nil
}

// restoreSession rebuilds the caller's session context, or starts a fresh
// one when the request carries none.
func (e *Engine) restoreSession(req Request) (*session.Context, error) {
	if len(req.Context) == 0 {
		return session.New(req.InitialDescription), nil
	}
	sess, err := session.Deserialize(req.Context)
	if err != nil {
		return nil, fmt.Errorf("restoring session context: %w", err)
	}
	return sess, nil
}

// candidateFields resolves which fields this call should extract. An
// explicit target field wins; otherwise the relevance detector decides.
// Empty means combined mode.
func (e *Engine) candidateFields(req Request) []string {
	if req.TargetField != "" && form.IsKnownField(req.TargetField) {
		return []string{req.TargetField}
	}
	return detect.Fields(req.Utterance)
}
