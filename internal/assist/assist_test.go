package assist

import (
	"context"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/JDelott/auctionfans-sub000/internal/form"
	"github.com/JDelott/auctionfans-sub000/internal/llm"
	"github.com/JDelott/auctionfans-sub000/internal/session"
)

// mockProvider answers by prompt substring so concurrent per-field calls
// each get their own canned response. Keys must not overlap.
type mockProvider struct {
	mu        sync.Mutex
	responses map[string]string
	fallback  string
	err       error
	errOnce   bool
	calls     []string
}

func (m *mockProvider) Complete(_ context.Context, prompt string, _ llm.CompletionOpts) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, prompt)
	if m.err != nil {
		err := m.err
		if m.errOnce {
			m.err = nil
		}
		return "", err
	}
	for key, resp := range m.responses {
		if strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	return m.fallback, nil
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockProvider) lastCall() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1]
}

type failErr struct{}

func (failErr) Error() string { return "upstream unavailable" }

func TestProcessMultiFieldUtterance(t *testing.T) {
	mock := &mockProvider{responses: map[string]string{
		"opening bid amount":             "25",
		"minimum the seller will accept": "50",
		"duration in days":               "7",
	}}
	engine := NewEngine(mock, DefaultOptions())

	res, err := engine.Process(context.Background(), Request{
		Utterance: "Start the bidding at 25, reserve is 50, and run it for 7 days",
		Form:      form.Snapshot{},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}

	want := map[string]string{
		form.FieldStartingPrice: "25.00",
		form.FieldReservePrice:  "50.00",
		form.FieldDurationDays:  "7",
	}
	if len(res.Updates) != len(want) {
		t.Fatalf("updates = %v, want %v", res.Updates, want)
	}
	for field, value := range want {
		if res.Updates[field] != value {
			t.Errorf("updates[%s] = %q, want %q", field, res.Updates[field], value)
		}
	}
	if len(res.FieldUpdates) != 3 {
		t.Fatalf("got %d itemized updates, want 3", len(res.FieldUpdates))
	}
	// Merge order follows detection order regardless of goroutine timing.
	order := []string{form.FieldStartingPrice, form.FieldReservePrice, form.FieldDurationDays}
	for i, fu := range res.FieldUpdates {
		if fu.Field != order[i] {
			t.Errorf("field_updates[%d] = %s, want %s", i, fu.Field, order[i])
		}
		if !strings.HasPrefix(fu.Reason, "extracted from:") {
			t.Errorf("field_updates[%d] reason = %q", i, fu.Reason)
		}
	}
	if len(res.Context) == 0 {
		t.Fatal("expected a serialized context in the result")
	}
}

func TestProcessConditionCorrection(t *testing.T) {
	mock := &mockProvider{responses: map[string]string{
		"one of: new, like-new": "excellent",
	}}
	engine := NewEngine(mock, DefaultOptions())

	res, err := engine.Process(context.Background(), Request{
		Utterance: "actually the condition is excellent",
		Form:      form.Snapshot{form.FieldCondition: "good"},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// Explicit mention lifts the filled-field guard; the synonym is
	// normalized by the validator.
	if got := res.Updates[form.FieldCondition]; got != "like-new" {
		t.Fatalf("condition = %q, want like-new", got)
	}
	if len(res.Updates) != 1 {
		t.Fatalf("updates = %v, want condition only", res.Updates)
	}
}

func TestProcessGuardSkipsFilledField(t *testing.T) {
	// The currency rule detects starting_price without naming it, so the
	// guard applies: the field is filled and the utterance never mentions
	// it, therefore no completion call is made.
	mock := &mockProvider{fallback: "25"}
	engine := NewEngine(mock, DefaultOptions())

	res, err := engine.Process(context.Background(), Request{
		Utterance: "how about $25",
		Form:      form.Snapshot{form.FieldStartingPrice: "10.00"},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Updates) != 0 {
		t.Fatalf("updates = %v, want none", res.Updates)
	}
	if mock.callCount() != 0 {
		t.Fatalf("provider called %d times, want 0", mock.callCount())
	}
}

func TestProcessTargetFieldOverridesDetection(t *testing.T) {
	mock := &mockProvider{fallback: "Vintage Omega Seamaster Watch"}
	engine := NewEngine(mock, DefaultOptions())

	res, err := engine.Process(context.Background(), Request{
		Utterance:   "it's an omega seamaster from the sixties",
		Form:        form.Snapshot{},
		TargetField: form.FieldTitle,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := res.Updates[form.FieldTitle]; got != "Vintage Omega Seamaster Watch" {
		t.Fatalf("title = %q", got)
	}
	if mock.callCount() != 1 {
		t.Fatalf("provider called %d times, want 1", mock.callCount())
	}
}

func TestProcessDropsUnusableResponses(t *testing.T) {
	mock := &mockProvider{responses: map[string]string{
		"opening bid amount":             "none",
		"minimum the seller will accept": "not mentioned by the seller",
	}}
	engine := NewEngine(mock, DefaultOptions())

	res, err := engine.Process(context.Background(), Request{
		Utterance: "set a starting bid and a reserve for me",
		Form:      form.Snapshot{},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// "none" is the no-answer sentinel; the reserve text fails validation.
	if len(res.Updates) != 0 {
		t.Fatalf("updates = %v, want none", res.Updates)
	}
}

func TestProcessCombinedTruncatedResponse(t *testing.T) {
	// Cut mid-way through the first fieldUpdates entry: the last closing
	// brace precedes the fieldUpdates key, so structural repair cannot
	// apply and the description is recovered by pattern.
	truncated := `{"formUpdates": {"description": "Lovely old pocket watch, keeps perfect time and winds smoothly"}, "fieldUpdates": [{"field": "condition", "va`
	mock := &mockProvider{fallback: truncated}
	engine := NewEngine(mock, DefaultOptions())

	res, err := engine.Process(context.Background(), Request{
		Utterance: "this is a lovely old pocket watch I inherited",
		Form:      form.Snapshot{},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	want := "Lovely old pocket watch, keeps perfect time and winds smoothly"
	if got := res.Updates[form.FieldDescription]; got != want {
		t.Fatalf("description = %q, want %q", got, want)
	}
	if len(res.FieldUpdates) != 0 {
		t.Fatalf("field_updates = %v, want none", res.FieldUpdates)
	}
}

func TestProcessCombinedTotalFailure(t *testing.T) {
	mock := &mockProvider{err: failErr{}}
	engine := NewEngine(mock, DefaultOptions())

	res, err := engine.Process(context.Background(), Request{
		Utterance: "old ceramic teapot from the estate",
		Form:      form.Snapshot{},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.Success {
		t.Fatal("a dead upstream still yields a well-formed result")
	}
	if len(res.Updates) != 0 {
		t.Fatalf("updates = %v, want none", res.Updates)
	}
	if len(res.Context) == 0 {
		t.Fatal("context must still round-trip on failure")
	}
	if mock.callCount() != 2 {
		t.Fatalf("provider called %d times, want contextual + fallback", mock.callCount())
	}
}

func TestProcessCombinedEndpointFallback(t *testing.T) {
	mock := &mockProvider{
		err:      failErr{},
		errOnce:  true,
		fallback: `{"formUpdates": {"title": "Antique Ceramic Teapot"}, "fieldUpdates": []}`,
	}
	engine := NewEngine(mock, DefaultOptions())

	res, err := engine.Process(context.Background(), Request{
		Utterance: "old ceramic teapot from the estate",
		Form:      form.Snapshot{},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := res.Updates[form.FieldTitle]; got != "Antique Ceramic Teapot" {
		t.Fatalf("title = %q", got)
	}
	if mock.callCount() != 2 {
		t.Fatalf("provider called %d times, want 2", mock.callCount())
	}
	if strings.Contains(mock.lastCall(), "Session context:") {
		t.Fatal("fallback prompt must not carry session grounding")
	}
}

func TestProcessCombinedGuardsFilledFields(t *testing.T) {
	// Nothing in the utterance triggers detection, so the call routes to
	// combined mode; the guard still holds there. Condition is filled and
	// never mentioned, so the payload's proposal for it is dropped.
	mock := &mockProvider{fallback: `{"formUpdates": {"condition": "mint"}, "fieldUpdates": []}`}
	engine := NewEngine(mock, DefaultOptions())

	res, err := engine.Process(context.Background(), Request{
		Utterance: "a lovely old thing my grandmother owned",
		Form:      form.Snapshot{form.FieldCondition: "good"},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if got, ok := res.Updates[form.FieldCondition]; ok {
		t.Fatalf("filled condition overwritten with %q", got)
	}
	if len(res.Updates) != 0 {
		t.Fatalf("updates = %v, want none", res.Updates)
	}
}

func TestProcessRecordsRawResponse(t *testing.T) {
	mock := &mockProvider{responses: map[string]string{
		"one of: new, like-new": "mint",
	}}
	engine := NewEngine(mock, DefaultOptions())

	res, err := engine.Process(context.Background(), Request{
		Utterance: "the condition is mint",
		Form:      form.Snapshot{},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	restored, err := session.Deserialize(res.Context)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(restored.History) != 1 {
		t.Fatalf("restored context has %d interactions, want 1", len(restored.History))
	}
	got := restored.History[0].Response
	if got == "" {
		t.Fatal("interaction recorded without the raw completion text")
	}
	if !strings.Contains(got, "mint") {
		t.Fatalf("response = %q, want the raw completion text", got)
	}
}

func TestProcessRecordsCombinedRawResponse(t *testing.T) {
	raw := `{"formUpdates": {"title": "Antique Ceramic Teapot"}, "fieldUpdates": []}`
	mock := &mockProvider{fallback: raw}
	engine := NewEngine(mock, DefaultOptions())

	res, err := engine.Process(context.Background(), Request{
		Utterance: "old ceramic teapot from the estate",
		Form:      form.Snapshot{},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	restored, err := session.Deserialize(res.Context)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(restored.History) != 1 {
		t.Fatalf("restored context has %d interactions, want 1", len(restored.History))
	}
	if restored.History[0].Response != raw {
		t.Fatalf("response = %q, want the combined completion verbatim", restored.History[0].Response)
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	// 12 runes, 3 bytes each: a cut at byte 25 lands mid-rune and must
	// back up to the previous boundary.
	s := strings.Repeat("世", 12)
	got := truncate(s, 25)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("世", 8) + "…"; got != want {
		t.Fatalf("truncate = %q, want %q", got, want)
	}
	if got := truncate("short", 80); got != "short" {
		t.Fatalf("truncate(short) = %q", got)
	}
}

func TestProcessContextRoundTrip(t *testing.T) {
	mock := &mockProvider{responses: map[string]string{
		"one of: new, like-new": "mint",
		"opening bid amount":    "100",
	}}
	engine := NewEngine(mock, DefaultOptions())

	first, err := engine.Process(context.Background(), Request{
		Utterance: "the condition is mint",
		Form:      form.Snapshot{},
	})
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	if first.Updates[form.FieldCondition] != "new" {
		t.Fatalf("condition = %q, want new", first.Updates[form.FieldCondition])
	}

	second, err := engine.Process(context.Background(), Request{
		Utterance: "start the bidding at 100",
		Form:      form.Snapshot{form.FieldCondition: "new"},
		Context:   first.Context,
	})
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if second.Updates[form.FieldStartingPrice] != "100.00" {
		t.Fatalf("starting_price = %q", second.Updates[form.FieldStartingPrice])
	}
	// The restored session carries the first interaction into grounding.
	if !strings.Contains(second.ContextUsed, "the condition is mint") {
		t.Fatalf("grounding missing prior interaction:\n%s", second.ContextUsed)
	}

	restored, err := session.Deserialize(second.Context)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got := len(restored.History); got != 2 {
		t.Fatalf("restored context has %d interactions, want 2", got)
	}
}

func TestProcessRejectsCorruptContext(t *testing.T) {
	engine := NewEngine(&mockProvider{}, DefaultOptions())

	_, err := engine.Process(context.Background(), Request{
		Utterance: "anything",
		Form:      form.Snapshot{},
		Context:   []byte("{not json"),
	})
	if err == nil {
		t.Fatal("expected an error for a corrupt context blob")
	}
}
