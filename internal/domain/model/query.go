// Package model contains domain models passed between layers.
package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Query types recognised by the parser.
const (
	QueryCoverage  = "coverage"
	QueryExclusion = "exclusion"
	QueryClaim     = "claim"
	QueryPremium   = "premium"
	QueryGeneral   = "general"
)

// ValidQueryType reports whether t is one of the known query types.
func ValidQueryType(t string) bool {
	switch t {
	case QueryCoverage, QueryExclusion, QueryClaim, QueryPremium, QueryGeneral:
		return true
	}
	return false
}

// ParsedQuery is the structured form of a free-text insurance question.
type ParsedQuery struct {
	Age                   *int     `json:"age"`
	Gender                *string  `json:"gender"`
	Procedure             *string  `json:"procedure"`
	Location              *string  `json:"location"`
	PolicyDurationMonths  *int     `json:"policy_duration_months"`
	QueryType             string   `json:"query_type"`
	Keywords              []string `json:"keywords"`
	OriginalQuery         string   `json:"original_query"`
	EnhancedSearchPhrases []string `json:"enhanced_search_phrases,omitempty"`
}

// FallbackQuery is the structure used when the model output is unusable.
func FallbackQuery(query string) ParsedQuery {
	return ParsedQuery{
		QueryType:     QueryGeneral,
		Keywords:      []string{query},
		OriginalQuery: query,
	}
}

// UnmarshalJSON accepts numbers or numeric strings for the integer fields
// and null or empty strings for every optional field.
func (p *ParsedQuery) UnmarshalJSON(data []byte) error {
	var raw struct {
		Age                   json.RawMessage `json:"age"`
		Gender                json.RawMessage `json:"gender"`
		Procedure             json.RawMessage `json:"procedure"`
		Location              json.RawMessage `json:"location"`
		PolicyDurationMonths  json.RawMessage `json:"policy_duration_months"`
		QueryType             string          `json:"query_type"`
		Keywords              json.RawMessage `json:"keywords"`
		OriginalQuery         string          `json:"original_query"`
		EnhancedSearchPhrases []string        `json:"enhanced_search_phrases"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = ParsedQuery{
		Age:                   flexInt(raw.Age),
		Gender:                flexString(raw.Gender),
		Procedure:             flexString(raw.Procedure),
		Location:              flexString(raw.Location),
		PolicyDurationMonths:  flexInt(raw.PolicyDurationMonths),
		QueryType:             strings.ToLower(strings.TrimSpace(raw.QueryType)),
		Keywords:              flexStrings(raw.Keywords),
		OriginalQuery:         raw.OriginalQuery,
		EnhancedSearchPhrases: raw.EnhancedSearchPhrases,
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func flexInt(raw json.RawMessage) *int {
	if isNull(raw) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		v := int(math.Round(f))
		return &v
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	// "46 years", "3 months"
	if i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }); i > 0 {
		s = s[:i]
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func flexString(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// Numbers and booleans are kept in their literal form.
		s = string(bytes.TrimSpace(raw))
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func flexStrings(raw json.RawMessage) []string {
	if isNull(raw) {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	if s := flexString(raw); s != nil {
		return []string{*s}
	}
	return nil
}
