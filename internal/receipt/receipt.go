// Package receipt turns the text returned by the receipt-reading model into an
// expense draft. The model output is untrusted: every field is validated and
// replaced by a default when unusable, so this package never fails on content.
package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"expensetracker/internal/core"
)

const (
	DefaultAmount            = 10.00
	DefaultDescription       = "Receipt expense"
	FailedParsingDescription = "Receipt expense (AI parsing failed)"
	MaxImageURILength        = 1000
	maxDescriptionRunes      = 200
)

var (
	ErrEmptyImageURI   = errors.New("empty image uri")
	ErrImageURITooLong = errors.New("image uri too long (max 1000 characters)")
	firstObjectPattern = regexp.MustCompile(`(?s)\{[^}]*\}`)
	codeFencePattern   = regexp.MustCompile("```json\\s*|```\\s*")
)

// Extraction is the raw model answer. Fields keep whatever JSON type the
// model produced; Normalize decides what is usable.
type Extraction struct {
	Amount      any
	Description any
	Category    any
	// Parsed is false when the completion held no decodable object and the
	// failure defaults were substituted.
	Parsed bool
}

// Result is a validated extraction.
type Result struct {
	Amount      float64       `json:"amount"`
	Description string        `json:"description"`
	Category    core.Category `json:"category"`
	// Defaulted names the fields that were replaced by defaults.
	Defaulted []string `json:"defaulted,omitempty"`
}

// ParseCompletion extracts the first flat JSON object from text, ignoring
// surrounding prose and markdown code fences.
func ParseCompletion(text string) Extraction {
	clean := strings.TrimSpace(text)
	if m := firstObjectPattern.FindString(clean); m != "" {
		clean = m
	}
	clean = codeFencePattern.ReplaceAllString(clean, "")

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return Extraction{
			Amount:      DefaultAmount,
			Description: FailedParsingDescription,
			Category:    core.FallbackCategoryID,
		}
	}
	return Extraction{
		Amount:      fields["amount"],
		Description: fields["description"],
		Category:    fields["category"],
		Parsed:      true,
	}
}

// Normalize applies the per-field defaults: a non-positive or non-numeric
// amount becomes DefaultAmount, an unknown category becomes "other", and a
// missing or blank description becomes DefaultDescription.
func Normalize(x Extraction) Result {
	var r Result

	amount, ok := toAmount(x.Amount)
	if !ok {
		amount = DefaultAmount
		r.Defaulted = append(r.Defaulted, "amount")
	}
	if n, err := core.NormalizeAmount(amount); err == nil {
		amount = n
	}
	r.Amount = amount

	id, _ := x.Category.(string)
	if !core.IsKnownCategory(id) {
		id = core.FallbackCategoryID
		r.Defaulted = append(r.Defaulted, "category")
	}
	r.Category = core.LookupCategory(id)

	desc, _ := x.Description.(string)
	desc = strings.TrimSpace(desc)
	if desc == "" {
		desc = DefaultDescription
		r.Defaulted = append(r.Defaulted, "description")
	}
	r.Description = truncate(desc, maxDescriptionRunes)
	return r
}

func toAmount(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return f, true
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:max]))
}

// ValidateImageURI trims uri and checks it is usable as a receipt reference.
func ValidateImageURI(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", ErrEmptyImageURI
	}
	if len(uri) > MaxImageURILength {
		return "", ErrImageURITooLong
	}
	return uri, nil
}

// Edits are the user's corrections on the confirmation screen. Empty values
// keep the extracted ones.
type Edits struct {
	Amount      string
	Description string
	CategoryID  string
}

// Confirm merges the user's edits into the result and returns the draft to
// store. date must already be formatted; the draft is flagged as
// AI-generated.
func Confirm(r Result, edits Edits, imageURI, date string) core.Draft {
	amount := r.Amount
	if edited, err := core.ParseAmount(edits.Amount); err == nil {
		amount = edited
	}
	description := r.Description
	if d := strings.TrimSpace(edits.Description); d != "" {
		description = truncate(d, maxDescriptionRunes)
	}
	category := r.Category
	if edits.CategoryID != "" {
		category = core.LookupCategory(edits.CategoryID)
	}
	return core.Draft{
		Amount:        amount,
		Description:   description,
		Category:      category,
		Date:          date,
		ImageURI:      imageURI,
		IsAIGenerated: true,
	}
}
