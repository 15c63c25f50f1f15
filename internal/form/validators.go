package form

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Conditions is the closed set of accepted condition values.
var Conditions = []string{"new", "like-new", "good", "fair", "poor"}

// conditionSynonyms maps common free-text condition words into the closed set.
var conditionSynonyms = map[string]string{
	"mint":      "new",
	"brand new": "new",
	"excellent": "like-new",
	"like new":  "like-new",
	"decent":    "good",
	"worn":      "fair",
	"used":      "fair",
	"damaged":   "poor",
	"broken":    "poor",
}

// Durations is the set of accepted auction durations in days.
var Durations = []int{1, 3, 5, 7, 10, 14}

// maxTitleWords caps titles to keep them listing-headline sized.
const maxTitleWords = 8

// minDescriptionLen rejects descriptions too short to be useful.
const minDescriptionLen = 10

// priceStripper removes everything except digits and dots from price text.
var priceStripper = strings.NewReplacer(
	"$", "", ",", "", "€", "", "£", "", " ", "",
)

// validateFunc normalizes and checks one proposed field value. It returns
// the canonical value to store, or an error meaning "no update for this
// field". Validators are idempotent: validate(validate(v)) == validate(v).
type validateFunc func(value string, categories []Category) (string, error)

// validators is the per-field rule table.
var validators = map[string]validateFunc{
	FieldTitle:          validateTitle,
	FieldDescription:    validateDescription,
	FieldCategoryID:     validateCategoryID,
	FieldCondition:      validateCondition,
	FieldStartingPrice:  validatePrice,
	FieldReservePrice:   validatePrice,
	FieldBuyNowPrice:    validatePrice,
	FieldDurationDays:   validateDuration,
	FieldVideoURL:       validateVideoURL,
	FieldVideoTimestamp: validateVideoTimestamp,
}

// Validate runs the field's domain validator over a proposed value and
// returns the canonical form. An error means the value must be dropped,
// not that the surrounding call failed.
func Validate(field, value string, categories []Category) (string, error) {
	fn, ok := validators[field]
	if !ok {
		return "", fmt.Errorf("unknown field %q", field)
	}
	return fn(value, categories)
}

func validateTitle(value string, _ []Category) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", fmt.Errorf("title is empty")
	}
	if len(strings.Fields(v)) > maxTitleWords {
		return "", fmt.Errorf("title exceeds %d words", maxTitleWords)
	}
	return v, nil
}

func validateDescription(value string, _ []Category) (string, error) {
	v := strings.TrimSpace(value)
	if len(v) <= minDescriptionLen {
		return "", fmt.Errorf("description too short (%d chars)", len(v))
	}
	return v, nil
}

func validateCategoryID(value string, categories []Category) (string, error) {
	v := strings.TrimSpace(value)
	for _, c := range categories {
		if c.ID == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("category id %q not in catalog", v)
}

func validateCondition(value string, _ []Category) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if mapped, ok := conditionSynonyms[v]; ok {
		v = mapped
	}
	for _, c := range Conditions {
		if c == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("condition %q not recognized", value)
}

func validatePrice(value string, _ []Category) (string, error) {
	v := priceStripper.Replace(strings.TrimSpace(value))
	// Strip any remaining non-digit/non-dot characters (e.g. "25 dollars").
	var b strings.Builder
	for _, r := range v {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	v = b.String()
	if v == "" {
		return "", fmt.Errorf("no numeric price in %q", value)
	}
	amount, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return "", fmt.Errorf("parsing price %q: %w", value, err)
	}
	if amount <= 0 {
		return "", fmt.Errorf("price must be positive, got %v", amount)
	}
	return fmt.Sprintf("%.2f", amount), nil
}

func validateDuration(value string, _ []Category) (string, error) {
	v := strings.TrimSpace(value)
	// Accept "7 days" style responses; keep leading digits only.
	digits := v
	for i, r := range v {
		if r < '0' || r > '9' {
			digits = v[:i]
			break
		}
	}
	days, err := strconv.Atoi(digits)
	if err != nil {
		return "", fmt.Errorf("parsing duration %q: %w", value, err)
	}
	for _, d := range Durations {
		if d == days {
			return strconv.Itoa(days), nil
		}
	}
	return "", fmt.Errorf("duration %d days not offered (choose from %v)", days, Durations)
}

func validateVideoURL(value string, _ []Category) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", fmt.Errorf("video url is empty")
	}
	if !strings.Contains(v, "://") {
		v = "https://" + v
	}
	u, err := url.Parse(v)
	if err != nil {
		return "", fmt.Errorf("parsing video url %q: %w", value, err)
	}
	if u.Host == "" || !strings.Contains(u.Host, ".") {
		return "", fmt.Errorf("video url %q has no valid host", value)
	}
	return u.String(), nil
}

func validateVideoTimestamp(value string, _ []Category) (string, error) {
	v := strings.TrimSpace(value)
	secs, err := strconv.Atoi(v)
	if err != nil {
		return "", fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	if secs < 0 {
		return "", fmt.Errorf("timestamp must be non-negative, got %d", secs)
	}
	return strconv.Itoa(secs), nil
}
