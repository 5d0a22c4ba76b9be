package tariffs

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  string
		valid bool
	}{
		{name: "comma decimal", raw: "1,234", want: "1.234", valid: true},
		{name: "dot decimal", raw: "47.5", want: "47.5", valid: true},
		{name: "plain integer", raw: "5", want: "5", valid: true},
		{name: "zero is a real value", raw: "0", want: "0", valid: true},
		{name: "negative", raw: "-12,5", want: "-12.5", valid: true},
		{name: "unknown sentinel", raw: "-", valid: false},
		{name: "empty string", raw: "", valid: false},
		{name: "garbage", raw: "abc", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseNumber(tt.raw)
			if !tt.valid {
				assert.False(t, got.Valid)
				return
			}
			require.True(t, got.Valid)
			want, err := decimal.NewFromString(tt.want)
			require.NoError(t, err)
			assert.True(t, got.Decimal.Equal(want), "got %s want %s", got.Decimal, want)
		})
	}
}

func TestParseDate(t *testing.T) {
	assert.Nil(t, ParseDate(""))
	assert.Nil(t, ParseDate("-"))

	got := ParseDate("2026-02-01")
	require.NotNil(t, got)
	assert.Equal(t, "2026-02-01", *got)
}
