package receipt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/core"
)

func TestParseCompletion(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantParsed bool
		wantDesc   any
	}{
		{"bare object", `{"amount": 25.99, "description": "Coffee", "category": "food"}`, true, "Coffee"},
		{"code fence", "```json\n{\"amount\": 25.99, \"description\": \"Coffee\", \"category\": \"food\"}\n```", true, "Coffee"},
		{"surrounding prose", `Sure! Here it is: {"amount": 3, "description": "Bus", "category": "transport"} Hope it helps.`, true, "Bus"},
		{"no object", "I cannot read this receipt.", false, FailedParsingDescription},
		{"broken object", `{"amount": 3, "description": }`, false, FailedParsingDescription},
		{"empty", "", false, FailedParsingDescription},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := ParseCompletion(tt.text)
			assert.Equal(t, tt.wantParsed, x.Parsed)
			assert.Equal(t, tt.wantDesc, x.Description)
		})
	}
}

func TestParseCompletion_FailureDefaults(t *testing.T) {
	r := Normalize(ParseCompletion("garbage"))

	assert.Equal(t, DefaultAmount, r.Amount)
	assert.Equal(t, FailedParsingDescription, r.Description)
	assert.Equal(t, core.FallbackCategoryID, r.Category.ID)
	assert.Empty(t, r.Defaulted)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name          string
		completion    string
		wantAmount    float64
		wantDesc      string
		wantCategory  string
		wantDefaulted []string
	}{
		{
			name:         "valid",
			completion:   `{"amount": 25.99, "description": "  Grocery shopping ", "category": "food"}`,
			wantAmount:   25.99,
			wantDesc:     "Grocery shopping",
			wantCategory: "food",
		},
		{
			name:          "zero amount",
			completion:    `{"amount": 0, "description": "x", "category": "food"}`,
			wantAmount:    DefaultAmount,
			wantDesc:      "x",
			wantCategory:  "food",
			wantDefaulted: []string{"amount"},
		},
		{
			name:          "negative amount",
			completion:    `{"amount": -4, "description": "x", "category": "food"}`,
			wantAmount:    DefaultAmount,
			wantDesc:      "x",
			wantCategory:  "food",
			wantDefaulted: []string{"amount"},
		},
		{
			name:         "numeric string amount",
			completion:   `{"amount": "12.5", "description": "x", "category": "bills"}`,
			wantAmount:   12.5,
			wantDesc:     "x",
			wantCategory: "bills",
		},
		{
			name:          "currency string amount",
			completion:    `{"amount": "$12.50", "description": "x", "category": "bills"}`,
			wantAmount:    DefaultAmount,
			wantDesc:      "x",
			wantCategory:  "bills",
			wantDefaulted: []string{"amount"},
		},
		{
			name:          "unknown category",
			completion:    `{"amount": 5, "description": "x", "category": "groceries"}`,
			wantAmount:    5,
			wantDesc:      "x",
			wantCategory:  core.FallbackCategoryID,
			wantDefaulted: []string{"category"},
		},
		{
			name:          "non-string description",
			completion:    `{"amount": 5, "description": 42, "category": "food"}`,
			wantAmount:    5,
			wantDesc:      DefaultDescription,
			wantCategory:  "food",
			wantDefaulted: []string{"description"},
		},
		{
			name:          "blank description",
			completion:    `{"amount": 5, "description": "   ", "category": "food"}`,
			wantAmount:    5,
			wantDesc:      DefaultDescription,
			wantCategory:  "food",
			wantDefaulted: []string{"description"},
		},
		{
			name:          "everything missing",
			completion:    `{}`,
			wantAmount:    DefaultAmount,
			wantDesc:      DefaultDescription,
			wantCategory:  core.FallbackCategoryID,
			wantDefaulted: []string{"amount", "category", "description"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Normalize(ParseCompletion(tt.completion))

			assert.InDelta(t, tt.wantAmount, r.Amount, 1e-9)
			assert.Equal(t, tt.wantDesc, r.Description)
			assert.Equal(t, core.LookupCategory(tt.wantCategory), r.Category)
			assert.Equal(t, tt.wantDefaulted, r.Defaulted)
		})
	}
}

func TestNormalize_TruncatesLongDescription(t *testing.T) {
	r := Normalize(Extraction{Amount: 1.0, Description: strings.Repeat("é", 300), Category: "food"})
	assert.Equal(t, 200, len([]rune(r.Description)))
}

func TestValidateImageURI(t *testing.T) {
	uri, err := ValidateImageURI("  file:///receipt.jpg  ")
	require.NoError(t, err)
	assert.Equal(t, "file:///receipt.jpg", uri)

	_, err = ValidateImageURI("   ")
	assert.ErrorIs(t, err, ErrEmptyImageURI)

	_, err = ValidateImageURI("file:///" + strings.Repeat("a", MaxImageURILength))
	assert.ErrorIs(t, err, ErrImageURITooLong)
}

func TestConfirm(t *testing.T) {
	r := Normalize(ParseCompletion(`{"amount": 25.99, "description": "Coffee", "category": "food"}`))
	date := "2025-03-20T10:00:00.000Z"

	t.Run("no edits keeps extraction", func(t *testing.T) {
		d := Confirm(r, Edits{}, "file:///r.jpg", date)

		assert.InDelta(t, 25.99, d.Amount, 1e-9)
		assert.Equal(t, "Coffee", d.Description)
		assert.Equal(t, "food", d.Category.ID)
		assert.Equal(t, "file:///r.jpg", d.ImageURI)
		assert.True(t, d.IsAIGenerated)
		assert.NoError(t, d.Validate())
	})

	t.Run("edits override", func(t *testing.T) {
		d := Confirm(r, Edits{Amount: "30,50", Description: " Latte ", CategoryID: "entertainment"}, "file:///r.jpg", date)

		assert.InDelta(t, 30.5, d.Amount, 1e-9)
		assert.Equal(t, "Latte", d.Description)
		assert.Equal(t, "entertainment", d.Category.ID)
	})

	t.Run("unparseable edited amount falls back", func(t *testing.T) {
		d := Confirm(r, Edits{Amount: "abc"}, "file:///r.jpg", date)
		assert.InDelta(t, 25.99, d.Amount, 1e-9)
	})
}
