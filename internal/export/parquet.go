// Package export writes run records as Parquet tables.
package export

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/23skdu/nclust/internal/core"
	nerrors "github.com/23skdu/nclust/internal/errors"
	"github.com/23skdu/nclust/internal/metrics"
)

// AssignmentRecord is one row of the assignments table.
type AssignmentRecord struct {
	Row     int64  `parquet:"row"`
	Cluster uint32 `parquet:"cluster"`
}

// CentroidRecord is one row of the centroids table. Weight and Covariance
// are only populated for mixture runs.
type CentroidRecord struct {
	RunID      string    `parquet:"run_id"`
	Algorithm  string    `parquet:"algorithm"`
	Cluster    uint32    `parquet:"cluster"`
	Count      int64     `parquet:"count"`
	Centroid   []float64 `parquet:"centroid"`
	Weight     float64   `parquet:"weight"`
	Covariance []float64 `parquet:"covariance"`
}

// assignmentBatch bounds the rows buffered per Write call.
const assignmentBatch = 64 * 1024

// WriteAssignments writes one row per dataset row.
func WriteAssignments(w io.Writer, rec *core.RunRecord) error {
	start := time.Now()
	pw := parquet.NewGenericWriter[AssignmentRecord](w, parquet.Compression(&parquet.Zstd))
	if err := writeAssignmentRows(pw, rec.Assignments); err != nil {
		_ = pw.Close()
		return err
	}
	if err := pw.Close(); err != nil {
		return nerrors.WrapIOError(err, "export.assignments", "close")
	}
	metrics.ExportWriteDurationSeconds.WithLabelValues("assignments").Observe(time.Since(start).Seconds())
	metrics.ExportRowsTotal.WithLabelValues("assignments").Add(float64(len(rec.Assignments)))
	return nil
}

func writeAssignmentRows(pw *parquet.GenericWriter[AssignmentRecord], ids []core.ClusterID) error {
	buf := make([]AssignmentRecord, 0, min(assignmentBatch, len(ids)))
	for row, id := range ids {
		buf = append(buf, AssignmentRecord{Row: int64(row), Cluster: id})
		if len(buf) == cap(buf) {
			if _, err := pw.Write(buf); err != nil {
				return nerrors.WrapIOError(err, "export.assignments", "write")
			}
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		if _, err := pw.Write(buf); err != nil {
			return nerrors.WrapIOError(err, "export.assignments", "write")
		}
	}
	return nil
}

// WriteCentroids writes one row per cluster.
func WriteCentroids(w io.Writer, rec *core.RunRecord) error {
	start := time.Now()
	rows := make([]CentroidRecord, rec.K)
	for c := range rows {
		rows[c] = CentroidRecord{
			RunID:     rec.RunID,
			Algorithm: string(rec.Algorithm),
			Cluster:   uint32(c),
			Count:     rec.Counts[c],
			Centroid:  append([]float64(nil), rec.Centroid(c)...),
		}
		if mix := rec.Mixture; mix != nil {
			rows[c].Weight = mix.Weights[c]
			rows[c].Covariance = mix.Covariances[c]
		}
	}

	pw := parquet.NewGenericWriter[CentroidRecord](w, parquet.Compression(&parquet.Zstd))
	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		return nerrors.WrapIOError(err, "export.centroids", "write")
	}
	if err := pw.Close(); err != nil {
		return nerrors.WrapIOError(err, "export.centroids", "close")
	}
	metrics.ExportWriteDurationSeconds.WithLabelValues("centroids").Observe(time.Since(start).Seconds())
	metrics.ExportRowsTotal.WithLabelValues("centroids").Add(float64(len(rows)))
	return nil
}

// WriteFiles writes <prefix>.assignments.parquet and
// <prefix>.centroids.parquet and returns their paths.
func WriteFiles(prefix string, rec *core.RunRecord) ([]string, error) {
	if dir := filepath.Dir(prefix); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nerrors.WrapIOError(err, "export.write_files", "mkdir "+dir)
		}
	}
	targets := []struct {
		path  string
		write func(io.Writer, *core.RunRecord) error
	}{
		{prefix + ".assignments.parquet", WriteAssignments},
		{prefix + ".centroids.parquet", WriteCentroids},
	}
	paths := make([]string, 0, len(targets))
	for _, t := range targets {
		f, err := os.Create(t.path)
		if err != nil {
			return paths, nerrors.WrapIOError(err, "export.write_files", "create "+t.path)
		}
		if err := t.write(f, rec); err != nil {
			_ = f.Close()
			return paths, err
		}
		if err := f.Close(); err != nil {
			return paths, nerrors.WrapIOError(err, "export.write_files", "close "+t.path)
		}
		paths = append(paths, t.path)
	}
	return paths, nil
}

// ReadAssignments reads an assignments table.
func ReadAssignments(r io.ReaderAt, size int64) ([]AssignmentRecord, error) {
	rows, err := parquet.Read[AssignmentRecord](r, size)
	if err != nil {
		return nil, nerrors.WrapIOError(err, "export.read_assignments", "read")
	}
	return rows, nil
}

// ReadCentroids reads a centroids table.
func ReadCentroids(r io.ReaderAt, size int64) ([]CentroidRecord, error) {
	rows, err := parquet.Read[CentroidRecord](r, size)
	if err != nil {
		return nil, nerrors.WrapIOError(err, "export.read_centroids", "read")
	}
	return rows, nil
}
