package window

import "time"

// DefaultSize is the number of distinct values a window keeps when no size is configured.
const DefaultSize = 10

// Entry is a value held in a window together with the moment it was admitted.
// Seq is a per-window logical clock: a higher Seq was admitted later. Eviction
// compares Seq rather than InsertedAt so that values admitted within the same
// clock tick still have a well-defined order.
type Entry struct {
	Value      float64   `json:"value"`
	InsertedAt time.Time `json:"insertedAt"`
	Seq        uint64    `json:"seq"`
}

// Stats describes what a single Add did to the window.
type Stats struct {
	Admitted   int
	Evicted    int
	Duplicates int
}

// Window is a bounded collection of distinct values. When full, a new value
// overwrites the slot holding the oldest entry; all other slots keep their
// position. A Window is not safe for concurrent use, Store guards it.
type Window struct {
	size    int
	entries []Entry
	seq     uint64
	now     func() time.Time
}

// New creates an empty window holding at most size values.
func New(size int, now func() time.Time) *Window {
	if size <= 0 {
		size = DefaultSize
	}

	if now == nil {
		now = time.Now
	}

	return &Window{
		size:    size,
		entries: make([]Entry, 0, size),
		now:     now,
	}
}

// Add folds values into the window in order.
func (w *Window) Add(values []float64) Stats {
	var stats Stats

	if len(values) == 0 {
		return stats
	}

	insertedAt := w.now()

	for _, v := range values {
		if w.contains(v) {
			stats.Duplicates++

			continue
		}

		w.seq++
		entry := Entry{Value: v, InsertedAt: insertedAt, Seq: w.seq}

		if len(w.entries) < w.size {
			w.entries = append(w.entries, entry)
		} else {
			w.entries[w.oldest()] = entry
			stats.Evicted++
		}

		stats.Admitted++
	}

	return stats
}

// Values returns a copy of the stored values in slot order.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.Value
	}

	return out
}

// Entries returns a copy of the stored entries in slot order.
func (w *Window) Entries() []Entry {
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)

	return out
}

// Average returns the arithmetic mean of the stored values, or 0 when empty.
func (w *Window) Average() float64 {
	if len(w.entries) == 0 {
		return 0
	}

	var sum float64
	for _, e := range w.entries {
		sum += e.Value
	}

	return sum / float64(len(w.entries))
}

// Len returns the number of stored values.
func (w *Window) Len() int {
	return len(w.entries)
}

// Size returns the configured capacity.
func (w *Window) Size() int {
	return w.size
}

func (w *Window) contains(v float64) bool {
	for _, e := range w.entries {
		if e.Value == v {
			return true
		}
	}

	return false
}

// oldest returns the index of the entry admitted first; the first index wins on ties.
func (w *Window) oldest() int {
	idx := 0

	for i := 1; i < len(w.entries); i++ {
		if w.entries[i].Seq < w.entries[idx].Seq {
			idx = i
		}
	}

	return idx
}
