package math

import (
	"errors"
	"math/big"
	"sync"
)

// ErrOverflow is returned when a scaled result does not fit in 64 bits.
var ErrOverflow = errors.New("fixed-point overflow")

// ErrDivisionByZero is returned for a zero denominator.
var ErrDivisionByZero = errors.New("division by zero")

type RoundingMode int

const (
	RoundDown RoundingMode = iota // Truncate toward zero (payouts)
	RoundUp                       // Away from zero on any remainder (charges)
	RoundHalfEven
)

// Pooled big.Int scratch space for intermediate products
var wordPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getWord() *big.Int {
	return wordPool.Get().(*big.Int)
}

func putWord(v *big.Int) {
	v.SetInt64(0)
	wordPool.Put(v)
}

// MulDiv computes a * b / d with 128-bit intermediate precision.
func MulDiv(a, b, d uint64, mode RoundingMode) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}

	product := getWord()
	quotient := getWord()
	remainder := getWord()
	denom := getWord()
	defer func() {
		putWord(product)
		putWord(quotient)
		putWord(remainder)
		putWord(denom)
	}()

	product.SetUint64(a)
	quotient.SetUint64(b)
	product.Mul(product, quotient)
	denom.SetUint64(d)

	quotient.QuoRem(product, denom, remainder)

	if remainder.Sign() != 0 {
		switch mode {
		case RoundUp:
			quotient.Add(quotient, big.NewInt(1))
		case RoundHalfEven:
			// Compare 2*remainder with the denominator
			remainder.Lsh(remainder, 1)
			cmp := remainder.Cmp(denom)
			if cmp > 0 || (cmp == 0 && quotient.Bit(0) == 1) {
				quotient.Add(quotient, big.NewInt(1))
			}
		}
	}

	if !quotient.IsUint64() {
		return 0, ErrOverflow
	}
	return quotient.Uint64(), nil
}

// Pow10 returns 10^exp. Exponents above 19 overflow uint64.
func Pow10(exp uint8) (uint64, error) {
	if exp > 19 {
		return 0, ErrOverflow
	}
	result := uint64(1)
	for i := uint8(0); i < exp; i++ {
		result *= 10
	}
	return result, nil
}

// AddChecked returns a + b or ErrOverflow.
func AddChecked(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}
