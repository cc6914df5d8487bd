// Package phase implements the lock-step rendezvous between the
// coordinator and its worker pool.
//
// The coordinator publishes one Phase at a time. Every worker wakes, runs
// that phase against its own partition without holding any lock, reports
// completion, and blocks until the next publication. The coordinator waits
// for all reports before it touches shared cluster state, so workers never
// observe a half-updated table.
package phase

import "fmt"

// Phase is the coordinator-published mode of execution.
type Phase int

const (
	// Wait is the idle state between phases. It is never published.
	Wait Phase = iota
	// Alloc copies the worker's row range into worker-local memory.
	Alloc
	// InitRandom assigns every local row to a random cluster.
	InitRandom
	// InitPlusPlus folds the newest centroid into the local
	// min-distance array for k-means++ seeding.
	InitPlusPlus
	// Assign runs the nearest-centroid step and accumulates partial sums.
	Assign
	// MeanUpdate recomputes partial sums from the current assignments.
	MeanUpdate
	// SplitEM runs one local 2-means step for every active split node.
	SplitEM
	// SplitCommit rewrites row partitions after split decisions.
	SplitCommit
	// EStep computes mixture responsibilities.
	EStep
	// MStep accumulates weighted scatter around the updated means.
	MStep
	// Test checksums the local partition.
	Test
	// Exit terminates the worker.
	Exit
)

var names = [...]string{
	Wait:         "wait",
	Alloc:        "alloc",
	InitRandom:   "init_random",
	InitPlusPlus: "init_plusplus",
	Assign:       "assign",
	MeanUpdate:   "mean_update",
	SplitEM:      "split_em",
	SplitCommit:  "split_commit",
	EStep:        "e_step",
	MStep:        "m_step",
	Test:         "test",
	Exit:         "exit",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(names) {
		return names[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Known reports whether p is a defined phase value.
func (p Phase) Known() bool {
	return p >= Wait && p <= Exit
}
