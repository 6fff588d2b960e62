package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderSizeFormula(t *testing.T) {
	s := NewSizer(0.2, 10, 5)

	// floor(10000 × 0.2 × 10 / 98.9) = floor(202.22...) = 202
	assert.Equal(t, float64(202), s.OrderSize(10000, 98.9))

	// floor(10000 × 0.2 × 10 / 100) = 200 exactly
	assert.Equal(t, float64(200), s.OrderSize(10000, 100))
}

func TestOrderSizeNonPositiveBalance(t *testing.T) {
	s := NewSizer(0.2, 10, 5)

	assert.Zero(t, s.OrderSize(0, 100))
	assert.Zero(t, s.OrderSize(-50, 100))
}

func TestOrderSizeClampedToMinimum(t *testing.T) {
	s := NewSizer(0.01, 1, 5)

	// floor(100 × 0.01 × 1 / 50000) would be 0, clamped to 1.
	assert.Equal(t, float64(1), s.OrderSize(100, 50000))
}

func TestOrderSizeInvalidPrice(t *testing.T) {
	s := NewSizer(0.2, 10, 5)
	assert.Zero(t, s.OrderSize(10000, 0))
}

func TestFallbackSize(t *testing.T) {
	s := NewSizer(0.2, 10, 7)
	assert.Equal(t, float64(7), s.Fallback())
}
