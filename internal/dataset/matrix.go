// Package dataset provides the row-major float64 datasets consumed by the
// clustering engine and the contiguous row partitioning across workers.
package dataset

import (
	"fmt"

	nerrors "github.com/23skdu/nclust/internal/errors"
)

// Source is a readable nrow x ncol dataset. Workers call ReadRows for their
// own range only, from their own pinned thread, so the destination buffer
// is first touched on the worker's NUMA node.
type Source interface {
	NRow() int
	NCol() int
	// ReadRows copies rows [start, end) into dst, which must hold
	// (end-start)*NCol() values.
	ReadRows(dst []float64, start, end int) error
}

// Matrix is an in-memory row-major dataset.
type Matrix struct {
	rows, cols int
	data       []float64
}

// NewMatrix wraps data as a rows x cols matrix without copying.
func NewMatrix(rows, cols int, data []float64) (*Matrix, error) {
	if rows < 0 || cols <= 0 {
		return nil, nerrors.NewValidationError("dataset.new_matrix",
			fmt.Sprintf("invalid shape %dx%d", rows, cols))
	}
	if len(data) != rows*cols {
		return nil, nerrors.NewValidationError("dataset.new_matrix",
			fmt.Sprintf("data length %d does not match %dx%d", len(data), rows, cols))
	}
	return &Matrix{rows: rows, cols: cols, data: data}, nil
}

// FromRows builds a matrix by copying equal-length rows.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, nerrors.NewValidationError("dataset.from_rows", "no rows")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, nerrors.NewValidationError("dataset.from_rows",
				fmt.Sprintf("row %d has %d columns, expected %d", i, len(r), cols))
		}
		data = append(data, r...)
	}
	return NewMatrix(len(rows), cols, data)
}

func (m *Matrix) NRow() int { return m.rows }
func (m *Matrix) NCol() int { return m.cols }

// Row returns row i as a slice aliasing the matrix storage.
func (m *Matrix) Row(i int) []float64 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// Data returns the backing row-major slice.
func (m *Matrix) Data() []float64 { return m.data }

// ReadRows implements Source.
func (m *Matrix) ReadRows(dst []float64, start, end int) error {
	if err := checkRange(m, dst, start, end); err != nil {
		return err
	}
	copy(dst, m.data[start*m.cols:end*m.cols])
	return nil
}

func checkRange(s Source, dst []float64, start, end int) error {
	if start < 0 || end > s.NRow() || start > end {
		return nerrors.NewValidationError("dataset.read_rows",
			fmt.Sprintf("row range [%d,%d) outside [0,%d)", start, end, s.NRow()))
	}
	if len(dst) != (end-start)*s.NCol() {
		return nerrors.NewValidationError("dataset.read_rows",
			fmt.Sprintf("destination holds %d values, need %d", len(dst), (end-start)*s.NCol()))
	}
	return nil
}
