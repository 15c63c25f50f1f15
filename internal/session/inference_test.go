package session

import (
	"math"
	"testing"
)

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestInferAttributesTable(t *testing.T) {
	tests := []struct {
		name          string
		imageAnalysis string
		description   string
		wantBrand     string
		wantType      string
		wantEra       string
		wantCondition string
		wantFeatures  []string
	}{
		{
			name:          "vintage omega watch",
			imageAnalysis: "A vintage Omega watch with leather strap",
			wantBrand:     "omega",
			wantType:      "watch",
			wantEra:       "vintage",
		},
		{
			name:        "year implies vintage",
			description: "a 1956 baseball card, signed and rare",
			wantType:    "card",
			wantEra:     "vintage",
			wantFeatures: []string{
				"signed", "rare",
			},
		},
		{
			name:          "retro console",
			description:   "retro Sega console, decent shape",
			wantBrand:     "sega",
			wantType:      "console",
			wantEra:       "retro",
			wantCondition: "good",
		},
		{
			name:          "modern sealed item",
			description:   "modern Nintendo console from 2021, still sealed",
			wantBrand:     "nintendo",
			wantType:      "console",
			wantEra:       "modern",
			wantCondition: "new",
		},
		{
			name:         "limited edition poster",
			description:  "a limited edition collectible poster",
			wantType:     "poster",
			wantFeatures: []string{"limited edition", "collectible"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New("")
			item := c.AddItem("item-1", tt.imageAnalysis, tt.description)

			a := item.Attributes
			if a.Brand != tt.wantBrand {
				t.Errorf("brand: got %q, want %q", a.Brand, tt.wantBrand)
			}
			if a.ItemType != tt.wantType {
				t.Errorf("item type: got %q, want %q", a.ItemType, tt.wantType)
			}
			if a.Era != tt.wantEra {
				t.Errorf("era: got %q, want %q", a.Era, tt.wantEra)
			}
			if a.Condition != tt.wantCondition {
				t.Errorf("condition: got %q, want %q", a.Condition, tt.wantCondition)
			}
			if len(a.SpecialFeatures) != len(tt.wantFeatures) {
				t.Fatalf("features: got %v, want %v", a.SpecialFeatures, tt.wantFeatures)
			}
			for i := range tt.wantFeatures {
				if a.SpecialFeatures[i] != tt.wantFeatures[i] {
					t.Errorf("features[%d]: got %q, want %q", i, a.SpecialFeatures[i], tt.wantFeatures[i])
				}
			}
		})
	}
}

func TestInferenceOverwritesOnlyDetected(t *testing.T) {
	c := New("")
	item := c.AddItem("item-1", "A vintage Omega watch", "")
	if item.Attributes.Era != "vintage" {
		t.Fatalf("setup: era = %q", item.Attributes.Era)
	}

	// The new interaction says nothing about era; the prior value stays.
	c.RecordInteraction("the watch is in excellent condition", "", nil, TagFieldUpdate)
	if item.Attributes.Era != "vintage" {
		t.Errorf("era lost on re-inference: %q", item.Attributes.Era)
	}
	if item.Attributes.Condition != "like-new" {
		t.Errorf("condition not updated: %q", item.Attributes.Condition)
	}
}

func TestConfidenceScoring(t *testing.T) {
	c := New("")
	// "omega" appears in both image analysis and user description:
	// 0.5 + 0.2 + 0.2 = 0.9.
	item := c.AddItem("item-1", "An Omega watch", "my omega from the seventies")

	if got := item.Confidence[AttrBrand]; !closeTo(got, 0.9) {
		t.Errorf("brand confidence: got %v, want 0.9", got)
	}
	// "watch" appears only in the image analysis: 0.5 + 0.2 = 0.7.
	if got := item.Confidence[AttrItemType]; !closeTo(got, 0.7) {
		t.Errorf("item type confidence: got %v, want 0.7", got)
	}
}

func TestConfidenceClampedAtMax(t *testing.T) {
	c := New("")
	c.AddItem("item-1", "An Omega watch", "my omega watch")
	// Each mentioning interaction adds 0.1; the cap must hold regardless.
	for i := 0; i < 10; i++ {
		c.RecordInteraction("the omega watch again", "", nil, TagFieldUpdate)
	}

	item := c.Item("item-1")
	for key, score := range item.Confidence {
		if score < 0 || score > MaxConfidence {
			t.Errorf("confidence[%s] = %v outside [0, %v]", key, score, MaxConfidence)
		}
	}
	if got := item.Confidence[AttrBrand]; got != MaxConfidence {
		t.Errorf("brand confidence should hit the cap, got %v", got)
	}
}

func TestFeatureConfidenceTracked(t *testing.T) {
	c := New("")
	item := c.AddItem("item-1", "a signed poster", "it is signed by the artist")
	if got := item.Confidence["signed"]; !closeTo(got, 0.9) {
		t.Errorf("feature confidence: got %v, want 0.9", got)
	}
}
