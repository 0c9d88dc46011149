package math_test

import (
	"testing"

	fpmath "BasketLedger/internal/math"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDiv_Rounding(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d uint64
		mode    fpmath.RoundingMode
		want    uint64
	}{
		{"exact down", 10, 30, 10_000, fpmath.RoundDown, 0},
		{"exact up", 10, 30, 10_000, fpmath.RoundUp, 1},
		{"divisible up", 10_000, 30, 10_000, fpmath.RoundUp, 30},
		{"divisible down", 10_000, 30, 10_000, fpmath.RoundDown, 30},
		{"half even to even", 5, 1, 2, fpmath.RoundHalfEven, 2},
		{"half even odd", 7, 1, 2, fpmath.RoundHalfEven, 4},
		{"half even below", 1, 1, 3, fpmath.RoundHalfEven, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fpmath.MulDiv(tt.a, tt.b, tt.d, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMulDiv_LargeIntermediate(t *testing.T) {
	// a*b overflows 64 bits, the quotient does not
	got, err := fpmath.MulDiv(1<<62, 1<<10, 1<<12, fpmath.RoundDown)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<60), got)
}

func TestMulDiv_Overflow(t *testing.T) {
	_, err := fpmath.MulDiv(1<<63, 4, 1, fpmath.RoundDown)
	assert.ErrorIs(t, err, fpmath.ErrOverflow)
}

func TestMulDiv_ZeroDenominator(t *testing.T) {
	_, err := fpmath.MulDiv(1, 1, 0, fpmath.RoundDown)
	assert.ErrorIs(t, err, fpmath.ErrDivisionByZero)
}

func TestPow10(t *testing.T) {
	v, err := fpmath.Pow10(6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), v)

	_, err = fpmath.Pow10(20)
	assert.ErrorIs(t, err, fpmath.ErrOverflow)
}

func TestAddChecked(t *testing.T) {
	_, err := fpmath.AddChecked(^uint64(0), 1)
	assert.ErrorIs(t, err, fpmath.ErrOverflow)

	v, err := fpmath.AddChecked(2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)
}
