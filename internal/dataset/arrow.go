package dataset

import (
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	nerrors "github.com/23skdu/nclust/internal/errors"
)

// FromArrowRecords builds a matrix from Arrow record batches.
//
// When column names a FixedSizeList<float32|float64> column, each list is a
// row. When column is empty, the first such list column is used; if there
// is none, every float32/float64 column contributes one value per row.
func FromArrowRecords(column string, records ...arrow.Record) (*Matrix, error) {
	var data []float64
	cols := -1
	rows := 0
	for _, rec := range records {
		if rec.NumRows() == 0 {
			continue
		}
		vals, n, err := recordValues(rec, column)
		if err != nil {
			return nil, err
		}
		if cols >= 0 && n != cols {
			return nil, nerrors.NewValidationError("dataset.from_arrow",
				fmt.Sprintf("record has %d columns, previous had %d", n, cols))
		}
		cols = n
		rows += int(rec.NumRows())
		data = append(data, vals...)
	}
	if cols <= 0 {
		return nil, nerrors.NewValidationError("dataset.from_arrow", "no numeric rows found")
	}
	return NewMatrix(rows, cols, data)
}

func recordValues(rec arrow.Record, column string) ([]float64, int, error) {
	idx := -1
	for i, f := range rec.Schema().Fields() {
		if column != "" && f.Name != column {
			continue
		}
		if _, ok := f.Type.(*arrow.FixedSizeListType); ok || column != "" {
			idx = i
			break
		}
	}
	if column != "" && idx < 0 {
		return nil, 0, nerrors.NewValidationError("dataset.from_arrow", "column not found: "+column)
	}
	if idx >= 0 {
		if fsl, ok := rec.Column(idx).(*array.FixedSizeList); ok {
			return listValues(fsl)
		}
		if column != "" {
			return nil, 0, nerrors.NewValidationError("dataset.from_arrow",
				fmt.Sprintf("column %s has type %s, want fixed size list", column, rec.Schema().Field(idx).Type))
		}
	}
	return scalarValues(rec)
}

func listValues(fsl *array.FixedSizeList) ([]float64, int, error) {
	typ := fsl.DataType().(*arrow.FixedSizeListType)
	width := int(typ.Len())
	rows := fsl.Len()
	base := fsl.Data().Offset()
	out := make([]float64, rows*width)

	switch child := fsl.ListValues().(type) {
	case *array.Float64:
		vals := child.Float64Values()
		for i := 0; i < rows; i++ {
			copy(out[i*width:(i+1)*width], vals[(base+i)*width:(base+i+1)*width])
		}
	case *array.Float32:
		vals := child.Float32Values()
		for i := 0; i < rows; i++ {
			src := vals[(base+i)*width : (base+i+1)*width]
			for j, v := range src {
				out[i*width+j] = float64(v)
			}
		}
	default:
		return nil, 0, nerrors.NewValidationError("dataset.from_arrow",
			fmt.Sprintf("unsupported vector element type: %s", typ.Elem()))
	}
	for i := 0; i < rows; i++ {
		if fsl.IsNull(i) {
			return nil, 0, nerrors.NewValidationError("dataset.from_arrow",
				fmt.Sprintf("row %d is null", i))
		}
	}
	return out, width, nil
}

func scalarValues(rec arrow.Record) ([]float64, int, error) {
	var numeric []arrow.Array
	for i := 0; i < int(rec.NumCols()); i++ {
		switch rec.Column(i).(type) {
		case *array.Float64, *array.Float32:
			numeric = append(numeric, rec.Column(i))
		}
	}
	width := len(numeric)
	if width == 0 {
		return nil, 0, nerrors.NewValidationError("dataset.from_arrow", "record has no float columns")
	}
	rows := int(rec.NumRows())
	out := make([]float64, rows*width)
	for j, col := range numeric {
		if col.NullN() > 0 {
			return nil, 0, nerrors.NewValidationError("dataset.from_arrow",
				fmt.Sprintf("column %d contains nulls", j))
		}
		switch c := col.(type) {
		case *array.Float64:
			for i, v := range c.Float64Values() {
				out[i*width+j] = v
			}
		case *array.Float32:
			for i, v := range c.Float32Values() {
				out[i*width+j] = float64(v)
			}
		}
	}
	return out, width, nil
}

// ReadArrowFile loads every record batch of an Arrow IPC file.
func ReadArrowFile(path, column string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nerrors.WrapIOError(err, "dataset.read_arrow", "open "+path)
	}
	defer f.Close()

	rdr, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, nerrors.WrapIOError(err, "dataset.read_arrow", "ipc reader")
	}
	defer rdr.Close()

	var parts []*Matrix
	for i := 0; i < rdr.NumRecords(); i++ {
		rec, err := rdr.Record(i)
		if err != nil {
			return nil, nerrors.WrapIOError(err, "dataset.read_arrow", fmt.Sprintf("record %d", i))
		}
		// the reader owns rec until the next call, so copy it out now
		m, err := FromArrowRecords(column, rec)
		if err != nil {
			if rec.NumRows() == 0 {
				continue
			}
			return nil, err
		}
		parts = append(parts, m)
	}
	return concat(parts)
}

func concat(parts []*Matrix) (*Matrix, error) {
	if len(parts) == 0 {
		return nil, nerrors.NewValidationError("dataset.read_arrow", "file holds no rows")
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	cols := parts[0].cols
	rows := 0
	for _, p := range parts {
		if p.cols != cols {
			return nil, nerrors.NewValidationError("dataset.read_arrow", "record batches disagree on width")
		}
		rows += p.rows
	}
	data := make([]float64, 0, rows*cols)
	for _, p := range parts {
		data = append(data, p.data...)
	}
	return NewMatrix(rows, cols, data)
}
