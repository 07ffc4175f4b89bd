package buffer

import (
	"math"
	"sync"
)

type Average float64
type Minimum int
type Maximum int

// History is a ring of the most recent raw moisture reads.
type History struct {
	position int
	count    int
	data     []int
	lock     sync.Mutex
}

func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{data: make([]int, size)}
}

func (h *History) Add(raw int) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.data[h.position] = raw
	h.position++
	if h.position == len(h.data) {
		h.position = 0
	}
	if h.count < len(h.data) {
		h.count++
	}
}

// Len is the number of reads held, at most the ring size.
func (h *History) Len() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.count
}

// Last returns the newest read, false when empty.
func (h *History) Last() (int, bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.count == 0 {
		return 0, false
	}
	index := h.position - 1
	if index < 0 {
		index += len(h.data)
	}
	return h.data[index], true
}

// Stats covers only the slots that have been written.
func (h *History) Stats() (Average, Minimum, Maximum) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.count == 0 {
		return 0, 0, 0
	}
	min := math.MaxInt
	max := math.MinInt
	sum := 0
	for _, x := range h.data[:h.count] {
		if x > max {
			max = x
		}
		if x < min {
			min = x
		}
		sum += x
	}
	return Average(float64(sum) / float64(h.count)), Minimum(min), Maximum(max)
}
