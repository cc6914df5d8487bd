package dataset

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	nerrors "github.com/23skdu/nclust/internal/errors"
)

const bytesPerValue = 8

// FileSource is a dataset stored as raw little-endian float64 values in
// row-major order. Rows are read on demand through io.ReaderAt, so each
// worker pulls only its own range from disk.
type FileSource struct {
	r          io.ReaderAt
	rows, cols int
	closer     io.Closer
}

// NewFileSource wraps r, which must hold at least rows*cols values.
func NewFileSource(r io.ReaderAt, rows, cols int) (*FileSource, error) {
	if rows < 0 || cols <= 0 {
		return nil, nerrors.NewValidationError("dataset.file_source",
			fmt.Sprintf("invalid shape %dx%d", rows, cols))
	}
	return &FileSource{r: r, rows: rows, cols: cols}, nil
}

// OpenFile opens a raw float64 file with ncol columns. The row count is
// derived from the file size.
func OpenFile(path string, ncol int) (*FileSource, error) {
	if ncol <= 0 {
		return nil, nerrors.NewValidationError("dataset.open_file", "ncol must be positive")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nerrors.WrapIOError(err, "dataset.open_file", "open "+path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nerrors.WrapIOError(err, "dataset.open_file", "stat "+path)
	}
	rowBytes := int64(ncol * bytesPerValue)
	if st.Size()%rowBytes != 0 {
		_ = f.Close()
		return nil, nerrors.NewValidationError("dataset.open_file",
			fmt.Sprintf("file size %d is not a multiple of %d-column rows", st.Size(), ncol))
	}
	return &FileSource{r: f, rows: int(st.Size() / rowBytes), cols: ncol, closer: f}, nil
}

func (s *FileSource) NRow() int { return s.rows }
func (s *FileSource) NCol() int { return s.cols }

// ReadRows implements Source.
func (s *FileSource) ReadRows(dst []float64, start, end int) error {
	if err := checkRange(s, dst, start, end); err != nil {
		return err
	}
	if start == end {
		return nil
	}
	buf := make([]byte, len(dst)*bytesPerValue)
	off := int64(start) * int64(s.cols*bytesPerValue)
	n, err := s.r.ReadAt(buf, off)
	if n < len(buf) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nerrors.WrapIOError(err, "dataset.read_rows",
			fmt.Sprintf("rows [%d,%d)", start, end))
	}
	decodeFloats(dst, buf)
	return nil
}

// Close releases the underlying file when the source owns it.
func (s *FileSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// LoadFile reads a whole raw float64 file into memory, splitting the read
// across up to parallel concurrent ReadAt calls. Paths ending in ".zst" are
// decoded as a zstd stream instead.
func LoadFile(path string, ncol, parallel int) (*Matrix, error) {
	if strings.HasSuffix(path, ".zst") {
		f, err := os.Open(path)
		if err != nil {
			return nil, nerrors.WrapIOError(err, "dataset.load_file", "open "+path)
		}
		defer f.Close()
		return LoadBinary(f, ncol, true)
	}

	src, err := OpenFile(path, ncol)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if parallel < 1 {
		parallel = 1
	}
	data := make([]float64, src.rows*ncol)
	var g errgroup.Group
	for _, r := range Partition(src.rows, parallel) {
		if r.Len() == 0 {
			continue
		}
		r := r
		g.Go(func() error {
			return src.ReadRows(data[r.Start*ncol:r.End*ncol], r.Start, r.End)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewMatrix(src.rows, ncol, data)
}

// LoadBinary reads raw little-endian float64 rows from r until EOF. When
// compressed is set the stream is zstd-decoded first.
func LoadBinary(r io.Reader, ncol int, compressed bool) (*Matrix, error) {
	if ncol <= 0 {
		return nil, nerrors.NewValidationError("dataset.load_binary", "ncol must be positive")
	}
	if compressed {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nerrors.WrapIOError(err, "dataset.load_binary", "zstd reader")
		}
		defer dec.Close()
		r = dec
	}

	br := bufio.NewReaderSize(r, 1<<20)
	var data []float64
	var word [bytesPerValue]byte
	for {
		_, err := io.ReadFull(br, word[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nerrors.WrapIOError(err, "dataset.load_binary", "truncated value")
		}
		data = append(data, math.Float64frombits(binary.LittleEndian.Uint64(word[:])))
	}
	if len(data)%ncol != 0 {
		return nil, nerrors.NewValidationError("dataset.load_binary",
			fmt.Sprintf("%d values is not a multiple of %d columns", len(data), ncol))
	}
	return NewMatrix(len(data)/ncol, ncol, data)
}

// WriteBinary writes m as raw little-endian float64 values.
func WriteBinary(w io.Writer, m *Matrix) error {
	bw := bufio.NewWriter(w)
	var word [bytesPerValue]byte
	for _, v := range m.data {
		binary.LittleEndian.PutUint64(word[:], math.Float64bits(v))
		if _, err := bw.Write(word[:]); err != nil {
			return nerrors.WrapIOError(err, "dataset.write_binary", "write")
		}
	}
	return bw.Flush()
}

func decodeFloats(dst []float64, buf []byte) {
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*bytesPerValue:]))
	}
}
