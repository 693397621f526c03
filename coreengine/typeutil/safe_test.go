package typeutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// ASSERTION TESTS
// =============================================================================

func TestSafeMapStringAny(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		wantMap  map[string]any
		wantBool bool
	}{
		{"valid map", map[string]any{"key": "value"}, map[string]any{"key": "value"}, true},
		{"nil value", nil, nil, false},
		{"wrong type string", "not a map", nil, false},
		{"empty map", map[string]any{}, map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeMapStringAny(tt.input)
			assert.Equal(t, tt.wantBool, ok)
			assert.Equal(t, tt.wantMap, got)
		})
	}
}

func TestSafeString(t *testing.T) {
	s, ok := SafeString("accept")
	assert.True(t, ok)
	assert.Equal(t, "accept", s)

	_, ok = SafeString(42)
	assert.False(t, ok)
	_, ok = SafeString(nil)
	assert.False(t, ok)

	assert.Equal(t, "fallback", SafeStringDefault(nil, "fallback"))
	assert.Equal(t, "x", SafeStringDefault("x", "fallback"))
}

func TestSafeInt(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   int
		wantOK bool
	}{
		{"int", 7, 7, true},
		{"int64", int64(9), 9, true},
		{"whole float64", float64(12), 12, true},
		{"fractional float64", 12.5, 0, false},
		{"string", "12", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeInt(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSafeFloat64(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   float64
		wantOK bool
	}{
		{"float64", 95000.5, 95000.5, true},
		{"int", 80, 80, true},
		{"numeric string", "95000", 95000, true},
		{"currency string", "$95,000", 95000, true},
		{"nan", math.NaN(), math.NaN(), false},
		{"word", "ninety", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeFloat64(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestSafeBoolAndSlice(t *testing.T) {
	b, ok := SafeBool(true)
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = SafeBool("true")
	assert.False(t, ok)

	s, ok := SafeSlice([]any{"a", 1})
	assert.True(t, ok)
	assert.Len(t, s, 2)

	_, ok = SafeSlice([]string{"a"})
	assert.False(t, ok)
}

// =============================================================================
// NUMBER PARSING TESTS
// =============================================================================

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input  string
		want   float64
		wantOK bool
	}{
		{"90000", 90000, true},
		{"$90,000", 90000, true},
		{" 12% ", 12, true},
		{"1.5k", 1500, true},
		{"$2M", 2_000_000, true},
		{"-3", -3, true},
		{"", 0, false},
		{"$", 0, false},
		{"k", 0, false},
		{"12 days", 0, false},
		{"Inf", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseNumber(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
