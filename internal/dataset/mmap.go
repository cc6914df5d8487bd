package dataset

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	nerrors "github.com/23skdu/nclust/internal/errors"
)

// MappedSource serves rows of a raw float64 file straight out of a
// read-only memory map. Workers copy their ranges on ALLOC, so the first
// touch of each page happens on the worker's own node.
type MappedSource struct {
	m          mmap.MMap
	f          *os.File
	rows, cols int
}

// MapFile maps a raw little-endian float64 file with ncol columns.
func MapFile(path string, ncol int) (*MappedSource, error) {
	if ncol <= 0 {
		return nil, nerrors.NewValidationError("dataset.map_file", "ncol must be positive")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nerrors.WrapIOError(err, "dataset.map_file", "open "+path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nerrors.WrapIOError(err, "dataset.map_file", "stat "+path)
	}
	rowBytes := int64(ncol * bytesPerValue)
	if st.Size()%rowBytes != 0 {
		_ = f.Close()
		return nil, nerrors.NewValidationError("dataset.map_file",
			fmt.Sprintf("file size %d is not a multiple of %d-column rows", st.Size(), ncol))
	}
	s := &MappedSource{f: f, rows: int(st.Size() / rowBytes), cols: ncol}
	if st.Size() == 0 {
		// mmap of an empty file fails on most platforms
		return s, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, nerrors.WrapIOError(err, "dataset.map_file", "mmap "+path)
	}
	s.m = m
	return s, nil
}

func (s *MappedSource) NRow() int { return s.rows }
func (s *MappedSource) NCol() int { return s.cols }

// ReadRows implements Source.
func (s *MappedSource) ReadRows(dst []float64, start, end int) error {
	if err := checkRange(s, dst, start, end); err != nil {
		return err
	}
	off := start * s.cols * bytesPerValue
	decodeFloats(dst, s.m[off:off+len(dst)*bytesPerValue])
	return nil
}

// Close unmaps the file and closes it.
func (s *MappedSource) Close() error {
	var err error
	if s.m != nil {
		err = s.m.Unmap()
		s.m = nil
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
