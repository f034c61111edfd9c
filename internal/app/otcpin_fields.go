package app

import (
	"fmt"
	"strings"
)

// FieldExtractor pulls a raw OTCPIN value out of a profile record.
type FieldExtractor struct {
	Name    string
	Extract func(profile map[string]any) (any, bool)
}

// OTCPINExtractors is tried in order; the first present, non-null value wins.
var OTCPINExtractors = []FieldExtractor{
	{Name: "OTCPIN", Extract: topLevel("OTCPIN")},
	{Name: "otcpin", Extract: topLevel("otcpin")},
	{Name: "permissions.OTCPIN", Extract: nested("permissions", "OTCPIN")},
	{Name: "data[0].OTCPIN", Extract: firstOfArray("data", "OTCPIN")},
}

func topLevel(field string) func(map[string]any) (any, bool) {
	return func(profile map[string]any) (any, bool) {
		v, ok := profile[field]
		return v, ok && v != nil
	}
}

func nested(parent, field string) func(map[string]any) (any, bool) {
	return func(profile map[string]any) (any, bool) {
		obj, ok := profile[parent].(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := obj[field]
		return v, ok && v != nil
	}
}

func firstOfArray(parent, field string) func(map[string]any) (any, bool) {
	return func(profile map[string]any) (any, bool) {
		items, ok := profile[parent].([]any)
		if !ok || len(items) == 0 {
			return nil, false
		}
		obj, ok := items[0].(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := obj[field]
		return v, ok && v != nil
	}
}

// ExtractOTCPIN returns the user-asserted OTCPIN value as a string, or nil
// when no extractor matched.
func ExtractOTCPIN(profile map[string]any) *string {
	return extractWith(OTCPINExtractors, profile)
}

func extractWith(extractors []FieldExtractor, profile map[string]any) *string {
	if profile == nil {
		return nil
	}
	for _, ex := range extractors {
		if v, ok := ex.Extract(profile); ok {
			s := strings.TrimSpace(fmt.Sprint(v))
			return &s
		}
	}
	return nil
}
