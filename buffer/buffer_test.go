package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmpty(t *testing.T) {
	h := NewHistory(4)
	_, ok := h.Last()
	assert.False(t, ok)
	a, mn, mx := h.Stats()
	assert.Equal(t, Average(0), a)
	assert.Equal(t, Minimum(0), mn)
	assert.Equal(t, Maximum(0), mx)
}

func TestPartialFill(t *testing.T) {
	h := NewHistory(10)
	h.Add(1200)
	h.Add(1300)

	a, mn, mx := h.Stats()
	assert.Equal(t, Average(1250), a)
	assert.Equal(t, Minimum(1200), mn)
	assert.Equal(t, Maximum(1300), mx)
	assert.Equal(t, 2, h.Len())

	last, ok := h.Last()
	assert.True(t, ok)
	assert.Equal(t, 1300, last)
}

func TestWraps(t *testing.T) {
	h := NewHistory(3)
	for _, v := range []int{5, 900, 10, 20, 30} {
		h.Add(v)
	}
	a, mn, mx := h.Stats()
	assert.Equal(t, Average(20), a)
	assert.Equal(t, Minimum(10), mn)
	assert.Equal(t, Maximum(30), mx)
	assert.Equal(t, 3, h.Len())

	last, _ := h.Last()
	assert.Equal(t, 30, last)
}

func TestNegativeReads(t *testing.T) {
	// the ADC is differential and can go below zero
	h := NewHistory(2)
	h.Add(-4)
	h.Add(-8)
	_, mn, mx := h.Stats()
	assert.Equal(t, Minimum(-8), mn)
	assert.Equal(t, Maximum(-4), mx)
}

func TestMinimumSize(t *testing.T) {
	h := NewHistory(0)
	h.Add(7)
	h.Add(9)
	assert.Equal(t, 1, h.Len())
	last, _ := h.Last()
	assert.Equal(t, 9, last)
}
