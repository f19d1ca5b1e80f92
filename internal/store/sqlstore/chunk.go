package sqlstore

import (
	"fmt"

	"github.com/google/uuid"
)

// parseUUID wraps uuid.Parse with a message identifying the failing column.
func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parsing uuid %q: %w", s, err)
	}
	return id, nil
}

// chunkSize returns how many rows of the given column width fit under the
// bind-parameter ceiling (spec §4.2: rows_per_statement * columns <= ceiling).
func (o *ops) chunkSize(columns int) int {
	if columns <= 0 {
		columns = 1
	}
	n := o.bindCeiling / columns
	if n < 1 {
		n = 1
	}
	return n
}

// chunkRanges splits n items into batches of at most size, returning [start,end)
// pairs.
func chunkRanges(n, size int) [][2]int {
	if size < 1 {
		size = 1
	}
	var ranges [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}
