// Package http serves the expense tracker JSON API.
//
// This file holds the helpers that read request bodies and query strings.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"expensetracker/internal/analytics"
	"expensetracker/internal/core"
)

const (
	maxBodyBytes   = 1 << 20
	maxImportBytes = 10 << 20
)

// errBadRequest marks payloads that are not well-formed JSON.
var errBadRequest = errors.New("malformed request body")

// Amount accepts a JSON number or a string such as "12,50".
type Amount struct {
	Value float64
	Set   bool
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	v, err := core.ParseAmount(raw)
	if err != nil {
		return err
	}
	a.Value, a.Set = v, true
	return nil
}

// ExpenseRequest is the body of POST /api/expenses and PATCH
// /api/expenses/{id}. Category is a catalog id.
type ExpenseRequest struct {
	Amount        Amount  `json:"amount"`
	Description   *string `json:"description"`
	Category      *string `json:"category"`
	Date          *string `json:"date"`
	ImageURI      *string `json:"imageUri"`
	IsAIGenerated *bool   `json:"isAIGenerated"`
}

// Draft converts a create request. Missing fields are left empty for the
// store to default or reject.
func (req ExpenseRequest) Draft() core.Draft {
	d := core.Draft{Amount: req.Amount.Value}
	if req.Description != nil {
		d.Description = sanitizeInput(*req.Description)
	}
	if req.Category != nil {
		d.Category = core.Category{ID: strings.TrimSpace(*req.Category)}
	}
	if req.Date != nil {
		d.Date = strings.TrimSpace(*req.Date)
	}
	if req.ImageURI != nil {
		d.ImageURI = strings.TrimSpace(*req.ImageURI)
	}
	if req.IsAIGenerated != nil {
		d.IsAIGenerated = *req.IsAIGenerated
	}
	return d
}

// Patch converts an update request; only present fields are changed.
func (req ExpenseRequest) Patch() core.ExpensePatch {
	var p core.ExpensePatch
	if req.Amount.Set {
		v := req.Amount.Value
		p.Amount = &v
	}
	if req.Description != nil {
		v := sanitizeInput(*req.Description)
		p.Description = &v
	}
	if req.Category != nil {
		p.Category = &core.Category{ID: strings.TrimSpace(*req.Category)}
	}
	if req.Date != nil {
		v := strings.TrimSpace(*req.Date)
		p.Date = &v
	}
	if req.ImageURI != nil {
		v := strings.TrimSpace(*req.ImageURI)
		p.ImageURI = &v
	}
	p.IsAIGenerated = req.IsAIGenerated
	return p
}

// ReceiptRequest is the body of POST /api/receipts.
type ReceiptRequest struct {
	Completion  string `json:"completion"`
	ImageURI    string `json:"imageUri"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// decodeJSON reads one JSON value from the body into dst. Syntax and type
// errors wrap errBadRequest; domain errors raised by custom unmarshalers are
// returned unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, core.ErrInvalidAmount) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON value", errBadRequest)
	}
	return nil
}

// readBody returns the raw body up to limit bytes.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return data, nil
}

// ParseFilterOptions reads search, category, start and end from the query.
// Dates accept any layout core.ParseDate does; an unparseable date is an
// error rather than being ignored.
func ParseFilterOptions(query url.Values, loc *time.Location) (analytics.FilterOptions, error) {
	opts := analytics.FilterOptions{
		Search:     sanitizeInput(query.Get("search")),
		CategoryID: strings.TrimSpace(query.Get("category")),
		Location:   loc,
	}
	for _, bound := range []struct {
		key string
		dst **time.Time
	}{
		{"start", &opts.Start},
		{"end", &opts.End},
	} {
		v := strings.TrimSpace(query.Get(bound.key))
		if v == "" {
			continue
		}
		t, err := core.ParseDate(v, loc)
		if err != nil {
			return analytics.FilterOptions{}, fmt.Errorf("%s: %w", bound.key, err)
		}
		*bound.dst = &t
	}
	return opts, nil
}

// sanitizeInput removes control characters except tab and newlines and trims
// whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
