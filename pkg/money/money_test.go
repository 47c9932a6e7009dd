package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPlatformFeeCents(t *testing.T) {
	tests := []struct {
		name    string
		price   int64
		percent string
		want    int64
	}{
		{"ten percent", 500, "10", 50},
		{"rounds half up", 125, "10", 13},
		{"rounds down", 124, "10", 12},
		{"fractional percent", 999, "2.5", 25},
		{"zero percent", 500, "0", 0},
		{"hundred percent", 500, "100", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlatformFeeCents(tt.price, decimal.RequireFromString(tt.percent))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNetCents(t *testing.T) {
	assert.Equal(t, int64(450), NetCents(500, decimal.NewFromInt(10)))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$5.00", Format(500, "usd"))
	assert.Equal(t, "€12.34", Format(1234, "EUR"))
	assert.Equal(t, "1.05 CAD", Format(105, "cad"))
	assert.Equal(t, "19.99", Decimal(1999).String())
}
