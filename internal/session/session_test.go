package session

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/JDelott/auctionfans-sub000/internal/form"
)

func TestNewContext(t *testing.T) {
	c := New("  clearing out my grandfather's attic  ")
	if c.ID == "" {
		t.Error("expected a generated session id")
	}
	if c.StartedAt.IsZero() {
		t.Error("expected a start timestamp")
	}
	if c.InitialDescription != "clearing out my grandfather's attic" {
		t.Errorf("initial description not trimmed: %q", c.InitialDescription)
	}
}

func TestAddItemRunsInference(t *testing.T) {
	c := New("")
	item := c.AddItem("item-1", "A vintage Omega watch with a worn leather strap", "")

	if item.Attributes.Brand != "omega" {
		t.Errorf("brand: got %q, want omega", item.Attributes.Brand)
	}
	if item.Attributes.ItemType != "watch" {
		t.Errorf("item type: got %q, want watch", item.Attributes.ItemType)
	}
	if item.Attributes.Era != "vintage" {
		t.Errorf("era: got %q, want vintage", item.Attributes.Era)
	}
	if item.Attributes.Condition != "fair" {
		t.Errorf("condition: got %q, want fair (from 'worn')", item.Attributes.Condition)
	}
}

func TestAddItemOverwriteKeepsOrder(t *testing.T) {
	c := New("")
	c.AddItem("a", "first", "")
	c.AddItem("b", "second", "")
	c.AddItem("a", "first again", "")

	items := c.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ItemID != "a" || items[1].ItemID != "b" {
		t.Errorf("insertion order broken: %s, %s", items[0].ItemID, items[1].ItemID)
	}
	if items[0].ImageAnalysis != "first again" {
		t.Errorf("overwrite did not replace item context: %q", items[0].ImageAnalysis)
	}
}

func TestRecordInteractionAssociatesByItemType(t *testing.T) {
	c := New("")
	c.AddItem("item-1", "A vintage Omega watch with a leather strap", "")
	c.AddItem("item-2", "A signed baseball card from 1956", "")

	c.RecordInteraction("the watch is in excellent condition", "", nil, TagFieldUpdate)

	if got := len(c.Item("item-1").Interactions); got != 1 {
		t.Errorf("item-1 should hold the interaction, got %d", got)
	}
	if got := len(c.Item("item-2").Interactions); got != 0 {
		t.Errorf("item-2 should not hold the interaction, got %d", got)
	}

	// Re-inference after the interaction picks up the condition talk.
	if cond := c.Item("item-1").Attributes.Condition; cond != "like-new" {
		t.Errorf("condition after interaction: got %q, want like-new", cond)
	}
}

func TestRecordInteractionAssociatesByAnalysisTokens(t *testing.T) {
	c := New("")
	c.AddItem("item-1", "ceramic teapot floral pattern chipped spout", "")

	// No inferred type/brand matches "teapot floral" directly by attribute,
	// but two analysis tokens appear in the input.
	c.RecordInteraction("the teapot with the floral design belonged to my aunt", "", nil, TagItemAnalysis)

	if got := len(c.Item("item-1").Interactions); got != 1 {
		t.Fatalf("expected token-based association, got %d interactions", got)
	}
}

func TestRecordInteractionNoAssociation(t *testing.T) {
	c := New("")
	c.AddItem("item-1", "A vintage Omega watch", "")

	c.RecordInteraction("ship everything on Friday please", "", nil, TagBatchOperation)

	if got := len(c.Item("item-1").Interactions); got != 0 {
		t.Errorf("unrelated input must not associate, got %d", got)
	}
	if got := len(c.History); got != 1 {
		t.Errorf("session history must still record it, got %d", got)
	}
}

func TestRecordInteractionFirstMatchWins(t *testing.T) {
	c := New("")
	c.AddItem("item-1", "A vintage Nike jacket", "")
	c.AddItem("item-2", "Another Nike jacket in blue", "")

	c.RecordInteraction("the nike jacket needs a better title", "", nil, TagFieldUpdate)

	// Both items qualify; insertion order decides, no tie-break.
	if got := len(c.Item("item-1").Interactions); got != 1 {
		t.Errorf("first item should win, got %d", got)
	}
	if got := len(c.Item("item-2").Interactions); got != 0 {
		t.Errorf("second item should not receive it, got %d", got)
	}
}

func TestTimestampsNonDecreasing(t *testing.T) {
	c := New("")
	for i := 0; i < 10; i++ {
		c.RecordInteraction("input", "", nil, TagFieldUpdate)
	}
	for i := 1; i < len(c.History); i++ {
		if c.History[i].Timestamp.Before(c.History[i-1].Timestamp) {
			t.Fatalf("timestamps decreased at %d", i)
		}
	}
}

func TestPreferencesAbsorbed(t *testing.T) {
	c := New("")
	c.RecordInteraction("seven day auction", "", map[string]FieldChange{
		form.FieldDurationDays: {From: "", To: "7", Reason: "user asked"},
	}, TagFieldUpdate)
	c.RecordInteraction("file it under collectibles", "", map[string]FieldChange{
		form.FieldCategoryID: {From: "", To: "cat-collectibles", Reason: "user asked"},
	}, TagFieldUpdate)
	c.RecordInteraction("start at 25", "", map[string]FieldChange{
		form.FieldStartingPrice: {From: "", To: "25.00", Reason: "user asked"},
	}, TagFieldUpdate)

	p := c.Preferences
	if p.DefaultDuration != "7" {
		t.Errorf("default duration: got %q", p.DefaultDuration)
	}
	if len(p.PreferredCategories) != 1 || p.PreferredCategories[0] != "cat-collectibles" {
		t.Errorf("preferred categories: got %v", p.PreferredCategories)
	}
	if len(p.PricePatterns) != 1 || p.PricePatterns[0] != "starting_price=25.00" {
		t.Errorf("price patterns: got %v", p.PricePatterns)
	}
}

func TestContextForAI(t *testing.T) {
	c := New("attic clearout")
	c.AddItem("item-1", "A vintage Omega watch", "my grandfather's watch")
	c.RecordInteraction("the watch is in excellent condition", "", map[string]FieldChange{
		form.FieldCondition: {From: "", To: "like-new", Reason: "user said excellent"},
	}, TagFieldUpdate)

	text := c.ContextForAI("item-1")
	for _, want := range []string{
		"attic clearout",
		"Item item-1",
		"Image analysis: A vintage Omega watch",
		"brand=omega",
		"Recent session interactions",
	} {
		if !contains(text, want) {
			t.Errorf("ContextForAI missing %q in:\n%s", want, text)
		}
	}
}

func TestContextForAITruncatesOnRuneBoundary(t *testing.T) {
	// A long multi-byte input gets shortened in the summary; the cut must
	// land on a rune boundary or the grounding text carries invalid UTF-8.
	c := New("")
	// The leading ASCII byte shifts every following rune off a multiple of
	// three, so a naive byte cut at 120 would split one.
	long := "a" + strings.Repeat("古い時計です。", 10)
	c.RecordInteraction(long, "", nil, TagItemAnalysis)

	text := c.ContextForAI("")
	if !utf8.ValidString(text) {
		t.Fatalf("grounding text is not valid UTF-8:\n%q", text)
	}
	if contains(text, long) {
		t.Fatal("long input should have been shortened in the summary")
	}
}

func TestFieldContext(t *testing.T) {
	c := New("")
	c.AddItem("item-1", "A vintage Omega watch", "")
	for _, to := range []string{"10.00", "15.00", "20.00", "25.00"} {
		c.RecordInteraction("the watch price", "", map[string]FieldChange{
			form.FieldStartingPrice: {From: "", To: to, Reason: "adjust"},
		}, TagFieldUpdate)
	}

	text := c.FieldContext(form.FieldStartingPrice, "item-1")
	if contains(text, "10.00") {
		t.Errorf("only the last 3 changes should render, got:\n%s", text)
	}
	for _, want := range []string{"15.00", "20.00", "25.00", "brand=omega", "type=watch"} {
		if !contains(text, want) {
			t.Errorf("FieldContext missing %q in:\n%s", want, text)
		}
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
