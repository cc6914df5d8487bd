package dataset

// Range is a half-open row interval [Start, End) owned by one worker.
type Range struct {
	Start int
	End   int
}

// Len returns the number of rows in r.
func (r Range) Len() int { return r.End - r.Start }

// Contains reports whether row lies in r.
func (r Range) Contains(row int) bool { return row >= r.Start && row < r.End }

// Partition splits nrow rows into n contiguous ranges whose sizes differ by
// at most one. The first nrow%n ranges carry the extra row. Ranges are
// disjoint, ordered, and cover [0, nrow) exactly; when n > nrow the trailing
// ranges are empty.
func Partition(nrow, n int) []Range {
	if n <= 0 {
		return nil
	}
	if nrow < 0 {
		nrow = 0
	}
	base, extra := nrow/n, nrow%n
	out := make([]Range, n)
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		out[i] = Range{Start: start, End: start + size}
		start += size
	}
	return out
}

// Owner returns the index of the range containing row, or -1.
func Owner(ranges []Range, row int) int {
	lo, hi := 0, len(ranges)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case row < ranges[mid].Start:
			hi = mid
		case row >= ranges[mid].End:
			lo = mid + 1
		default:
			return mid
		}
	}
	return -1
}
