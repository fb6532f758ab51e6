// Package chunk splits ordered filter-value lists into size-bounded
// sub-batches so filter queries stay under a remote API's URL/body
// limit while keeping batches as large as possible.
package chunk

import (
	"errors"
	"fmt"
)

// ErrValueTooLarge reports a single value that cannot fit into any
// chunk under the configured byte budget. This is a configuration or
// input error and fails the whole operation rather than dropping the
// value.
var ErrValueTooLarge = errors.New("chunk: single value exceeds byte budget")

// Limits bounds a chunk by serialized size and, optionally, item count.
type Limits struct {
	// MaxBytes is the serialized-size budget per chunk. Required.
	MaxBytes int

	// PerItemOverhead is added to each value's length (separators,
	// quoting, parameter name) when accounting against MaxBytes.
	PerItemOverhead int

	// MaxCount caps items per chunk. Zero means unbounded.
	MaxCount int
}

// Validate rejects unusable limits at construction time.
func (l Limits) Validate() error {
	if l.MaxBytes <= 0 {
		return fmt.Errorf("chunk: MaxBytes must be positive, got %d", l.MaxBytes)
	}
	if l.PerItemOverhead < 0 {
		return fmt.Errorf("chunk: PerItemOverhead must not be negative, got %d", l.PerItemOverhead)
	}
	if l.MaxCount < 0 {
		return fmt.Errorf("chunk: MaxCount must not be negative, got %d", l.MaxCount)
	}
	return nil
}

// BySize greedily packs values into the minimum number of ordered
// chunks such that each chunk's accounted size stays within
// lim.MaxBytes and its length within lim.MaxCount. Input order is
// preserved; concatenating the chunks reproduces values exactly.
func BySize(values []string, lim Limits) ([][]string, error) {
	if err := lim.Validate(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	var (
		chunks  [][]string
		current []string
		size    int
	)
	for _, v := range values {
		cost := len(v) + lim.PerItemOverhead
		if cost > lim.MaxBytes {
			return nil, fmt.Errorf("%w: value %q needs %d bytes, budget is %d",
				ErrValueTooLarge, v, cost, lim.MaxBytes)
		}

		full := size+cost > lim.MaxBytes
		if !full && lim.MaxCount > 0 && len(current) >= lim.MaxCount {
			full = true
		}
		if full && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			size = 0
		}
		current = append(current, v)
		size += cost
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, nil
}
