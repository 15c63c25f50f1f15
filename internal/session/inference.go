package session

import (
	"regexp"
	"strings"
)

// Attribute names used as confidence-map keys.
const (
	AttrCategory  = "category"
	AttrBrand     = "brand"
	AttrItemType  = "item_type"
	AttrEra       = "era"
	AttrCondition = "condition"
)

// attributeRule is one row of the detection table: when any trigger (or the
// pattern) matches the corpus, the attribute takes the rule's value. Rules
// are evaluated uniformly in a loop; new detection rules are new rows, not
// new branches. For single-valued attributes the first matching row wins
// within a run; mismatched attributes keep their prior value.
type attributeRule struct {
	attribute string
	value     string
	triggers  []string
	pattern   *regexp.Regexp
}

// knownBrands is the closed brand keyword list.
var knownBrands = []string{
	"nike", "adidas", "sony", "apple", "samsung", "levi's", "levis",
	"rolex", "omega", "seiko", "gucci", "prada", "chanel", "canon",
	"nikon", "leica", "nintendo", "sega", "atari", "gibson", "fender",
	"topps", "panini", "lego", "barbie", "hot wheels",
}

// knownItemTypes is the closed item-type keyword list.
var knownItemTypes = []string{
	"jacket", "watch", "camera", "guitar", "card", "coin", "vinyl",
	"record", "console", "lamp", "chair", "table", "ring", "necklace",
	"bag", "shoes", "sneakers", "poster", "comic", "jersey", "helmet",
	"figurine", "doll", "painting", "clock", "radio", "typewriter",
}

// vintageYearRE matches 4-digit 19xx years, a strong vintage cue.
var vintageYearRE = regexp.MustCompile(`\b19\d{2}\b`)

// recentYearRE matches years from 2010 on, a modern cue.
var recentYearRE = regexp.MustCompile(`\b20[1-9]\d\b`)

// attributeRules is the full detection table. Brand and item-type rows are
// appended from the closed lists at init.
var attributeRules = buildAttributeRules()

func buildAttributeRules() []attributeRule {
	rules := []attributeRule{
		// Era: vintage cues or a 19xx year beat "retro", which beats modern cues.
		{attribute: AttrEra, value: "vintage", triggers: []string{"vintage", "antique"}, pattern: vintageYearRE},
		{attribute: AttrEra, value: "retro", triggers: []string{"retro"}},
		{attribute: AttrEra, value: "modern", triggers: []string{"modern", "latest model", "current model"}, pattern: recentYearRE},

		// Condition cues. "like new" sits above the bare "new" row so the
		// substring match resolves to the right value.
		{attribute: AttrCondition, value: "like-new", triggers: []string{"excellent", "like new"}},
		{attribute: AttrCondition, value: "new", triggers: []string{"mint", "brand new", "never used", "sealed", "new"}},
		{attribute: AttrCondition, value: "good", triggers: []string{"good", "decent"}},
		{attribute: AttrCondition, value: "fair", triggers: []string{"worn", "used"}},
	}

	for _, brand := range knownBrands {
		rules = append(rules, attributeRule{attribute: AttrBrand, value: brand, triggers: []string{brand}})
	}
	for _, itemType := range knownItemTypes {
		rules = append(rules, attributeRule{attribute: AttrItemType, value: itemType, triggers: []string{itemType}})
	}
	return rules
}

// featureCues are the multi-valued special-feature detectors; matches union.
var featureCues = []string{"signed", "autographed", "rare", "limited edition", "collectible", "one of a kind", "numbered"}

// inferAttributes re-derives an item's attributes from everything said about
// it so far: image analysis + user description + every interaction input,
// concatenated into one lowercase corpus.
func (c *Context) inferAttributes(item *ItemContext) {
	var parts []string
	parts = append(parts, item.ImageAnalysis, item.UserDescription)
	for _, it := range item.Interactions {
		parts = append(parts, it.Input)
	}
	corpus := strings.ToLower(strings.Join(parts, " "))

	detected := make(map[string]string)
	for _, rule := range attributeRules {
		if _, done := detected[rule.attribute]; done {
			continue
		}
		if ruleMatches(rule, corpus) {
			detected[rule.attribute] = rule.value
		}
	}

	// Non-empty detections overwrite; everything else is left as-is.
	if v, ok := detected[AttrBrand]; ok {
		item.Attributes.Brand = v
	}
	if v, ok := detected[AttrItemType]; ok {
		item.Attributes.ItemType = v
	}
	if v, ok := detected[AttrEra]; ok {
		item.Attributes.Era = v
	}
	if v, ok := detected[AttrCondition]; ok {
		item.Attributes.Condition = v
	}

	var features []string
	for _, cue := range featureCues {
		if strings.Contains(corpus, cue) {
			features = append(features, cue)
		}
	}
	if len(features) > 0 {
		item.Attributes.SpecialFeatures = features
	}

	c.scoreConfidence(item)
}

func ruleMatches(rule attributeRule, corpus string) bool {
	for _, trigger := range rule.triggers {
		if strings.Contains(corpus, trigger) {
			return true
		}
	}
	return rule.pattern != nil && rule.pattern.MatchString(corpus)
}

// MaxConfidence caps every inferred-attribute score.
const MaxConfidence = 0.95

// scoreConfidence recomputes per-attribute confidence: base 0.5, +0.2 when
// the value appears in the image analysis, +0.2 in the user description,
// +0.1 for each interaction input containing it, clamped to MaxConfidence.
func (c *Context) scoreConfidence(item *ItemContext) {
	if item.Confidence == nil {
		item.Confidence = make(map[string]float64)
	}

	scored := map[string]string{
		AttrCategory:  item.Attributes.Category,
		AttrBrand:     item.Attributes.Brand,
		AttrItemType:  item.Attributes.ItemType,
		AttrEra:       item.Attributes.Era,
		AttrCondition: item.Attributes.Condition,
	}
	for _, feature := range item.Attributes.SpecialFeatures {
		scored[feature] = feature
	}

	for key, value := range scored {
		if value == "" {
			continue
		}
		item.Confidence[key] = c.confidenceFor(item, value)
	}
}

func (c *Context) confidenceFor(item *ItemContext, value string) float64 {
	v := strings.ToLower(value)
	score := 0.5
	if strings.Contains(strings.ToLower(item.ImageAnalysis), v) {
		score += 0.2
	}
	if strings.Contains(strings.ToLower(item.UserDescription), v) {
		score += 0.2
	}
	for _, it := range item.Interactions {
		if strings.Contains(strings.ToLower(it.Input), v) {
			score += 0.1
		}
	}
	if score > MaxConfidence {
		score = MaxConfidence
	}
	return score
}
