// Package pii detects and optionally redacts personally identifiable
// information in form submission fields. It runs client-side before
// encryption as defense in depth; it is not a substitute for the envelope
// codec.
//
// Scanning is deterministic: fields are visited in sorted order and
// matchers run in a fixed sequence, so identical input always yields
// identical detections and redactions.
package pii

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Category labels a class of sensitive data.
type Category string

const (
	CategoryEmail      Category = "email"
	CategoryPhone      Category = "phone"
	CategorySSN        Category = "ssn"
	CategoryCreditCard Category = "credit_card"
	CategoryAddress    Category = "address"
)

// Mode selects what the scanner does with detections.
type Mode string

const (
	// ModeFlag returns detections without altering the data.
	ModeFlag Mode = "flag"
	// ModeStrip replaces matched substrings with a redaction marker.
	ModeStrip Mode = "strip"
	// ModeBlock marks the result as blocked if any detection fired.
	ModeBlock Mode = "block"
)

// Detection records that a field matched a category.
type Detection struct {
	Field    string   `json:"field"`
	Category Category `json:"category"`
}

// Result is the outcome of one Scan call.
type Result struct {
	// Detections lists every (field, category) match, ordered by field
	// name and then matcher order.
	Detections []Detection `json:"detections"`
	// Cleaned holds the redacted copy of the input in strip mode, and is
	// nil otherwise. The input map is never mutated.
	Cleaned map[string]string `json:"cleaned,omitempty"`
	// Blocked reports whether block mode rejected the data.
	Blocked bool `json:"blocked"`
}

type matcher struct {
	category Category
	re       *regexp.Regexp
	// verify, when set, filters raw regexp matches. Used for the Luhn
	// checksum on credit-card candidates.
	verify func(string) bool
}

// Matcher order is part of the scanner contract: redaction output depends
// on it, and tests pin it.
var matchers = []matcher{
	{
		category: CategoryEmail,
		re:       regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	},
	{
		category: CategorySSN,
		re:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	},
	{
		category: CategoryCreditCard,
		re:       regexp.MustCompile(`\b(?:\d[ \-]?){13,19}\b`),
		verify:   luhnValid,
	},
	{
		category: CategoryPhone,
		re:       regexp.MustCompile(`(?:\+\d{1,2}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`),
	},
	{
		category: CategoryAddress,
		re:       regexp.MustCompile(`(?i)\b\d{1,6}\s+(?:[A-Za-z]+\s+){0,3}(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way)\b\.?`),
	},
}

// Detect runs every matcher over every field and returns the matches.
// The input is never modified.
func Detect(data map[string]string) []Detection {
	detections := make([]Detection, 0)
	for _, field := range sortedFields(data) {
		value := data[field]
		for _, m := range matchers {
			if m.matches(value) {
				detections = append(detections, Detection{Field: field, Category: m.category})
			}
		}
	}
	return detections
}

// Scan applies the given mode to the data and returns the result.
func Scan(data map[string]string, mode Mode) (*Result, error) {
	switch mode {
	case ModeFlag:
		return &Result{Detections: Detect(data)}, nil
	case ModeBlock:
		detections := Detect(data)
		return &Result{Detections: detections, Blocked: len(detections) > 0}, nil
	case ModeStrip:
		return strip(data), nil
	default:
		return nil, fmt.Errorf("unknown scan mode %q", mode)
	}
}

// RedactionMarker is the stable marker substituted for a match in strip
// mode.
func RedactionMarker(c Category) string {
	return "[REDACTED:" + string(c) + "]"
}

func strip(data map[string]string) *Result {
	result := &Result{
		Detections: make([]Detection, 0),
		Cleaned:    make(map[string]string, len(data)),
	}
	for _, field := range sortedFields(data) {
		value := data[field]
		for _, m := range matchers {
			cleaned := m.redact(value)
			if cleaned != value {
				result.Detections = append(result.Detections, Detection{Field: field, Category: m.category})
				value = cleaned
			}
		}
		result.Cleaned[field] = value
	}
	return result
}

func (m matcher) matches(value string) bool {
	if m.verify == nil {
		return m.re.MatchString(value)
	}
	for _, candidate := range m.re.FindAllString(value, -1) {
		if m.verify(candidate) {
			return true
		}
	}
	return false
}

func (m matcher) redact(value string) string {
	return m.re.ReplaceAllStringFunc(value, func(match string) string {
		if m.verify != nil && !m.verify(match) {
			return match
		}
		return RedactionMarker(m.category)
	})
}

// luhnValid reports whether the digits in s (separators ignored) pass the
// Luhn checksum.
func luhnValid(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func sortedFields(data map[string]string) []string {
	fields := make([]string, 0, len(data))
	for f := range data {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
