package agent

import (
	"encoding/json"
	"fmt"
)

// HistoryCapacity bounds the stress history window.
const HistoryCapacity = 15

// History is a fixed-capacity FIFO of stress scores. It is a plain value:
// copying a History copies its contents, so a State can be threaded through
// transitions without aliasing.
type History struct {
	buf  [HistoryCapacity]float64
	head int // index of the oldest entry
	size int
}

// Push appends v, evicting the oldest entry when full.
func (h History) Push(v float64) History {
	if h.size < HistoryCapacity {
		h.buf[(h.head+h.size)%HistoryCapacity] = v
		h.size++
		return h
	}
	h.buf[h.head] = v
	h.head = (h.head + 1) % HistoryCapacity
	return h
}

func (h History) Len() int { return h.size }

// Values returns the entries oldest first.
func (h History) Values() []float64 {
	out := make([]float64, h.size)
	for i := range out {
		out[i] = h.buf[(h.head+i)%HistoryCapacity]
	}
	return out
}

// Mean is the arithmetic mean of the entries, 0 when empty.
func (h History) Mean() float64 {
	if h.size == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < h.size; i++ {
		sum += h.buf[(h.head+i)%HistoryCapacity]
	}
	return sum / float64(h.size)
}

func (h History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Values())
}

func (h *History) UnmarshalJSON(b []byte) error {
	var vals []float64
	if err := json.Unmarshal(b, &vals); err != nil {
		return err
	}
	if len(vals) > HistoryCapacity {
		return fmt.Errorf("%w: stress history holds %d entries, capacity is %d", ErrInvalidState, len(vals), HistoryCapacity)
	}
	for i, v := range vals {
		if !unit(v) {
			return fmt.Errorf("%w: stress history entry %d is %v, outside [0,1]", ErrInvalidState, i, v)
		}
	}
	*h = History{}
	for _, v := range vals {
		*h = h.Push(v)
	}
	return nil
}

// unit reports whether v lies in [0,1]; NaN does not.
func unit(v float64) bool { return v >= 0 && v <= 1 }
