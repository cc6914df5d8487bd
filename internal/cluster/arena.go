package cluster

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/23skdu/nclust/internal/core"
)

// NodeStatus is the lifecycle state of a split node.
type NodeStatus uint8

const (
	// StatusCandidate is a reserved child id whose parent has not been
	// decided yet.
	StatusCandidate NodeStatus = iota
	// StatusActive is a live partition whose two-way split is being refined.
	StatusActive
	// StatusConverged is a live partition whose split refinement stopped
	// moving rows and awaits a decision.
	StatusConverged
	// StatusCommitted is a former partition whose split was accepted. Its
	// rows now belong to its children.
	StatusCommitted
	// StatusTerminal is a live partition that will not be split again.
	StatusTerminal
	// StatusTombstoned is a discarded candidate.
	StatusTombstoned
)

var statusNames = [...]string{
	StatusCandidate:  "candidate",
	StatusActive:     "active",
	StatusConverged:  "converged",
	StatusCommitted:  "committed",
	StatusTerminal:   "terminal",
	StatusTombstoned: "tombstoned",
}

func (s NodeStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", s)
}

// Node is one record of the split arena. Ids are stable for the life of
// the arena; nodes are never moved or reused.
type Node struct {
	ID     uint32
	Parent uint32
	Depth  int
	Status NodeStatus

	// Centroid is the mean of the node's rows.
	Centroid []float64
	Count    int64
	// SSE is the squared error of the node's rows around Centroid, set
	// when the node's split is decided.
	SSE float64

	// ZeroID and OneID are the candidate children. Means holds their two
	// centroids back to back.
	ZeroID uint32
	OneID  uint32
	Means  []float64
}

// Live reports whether the node currently owns rows.
func (n *Node) Live() bool {
	switch n.Status {
	case StatusActive, StatusConverged, StatusTerminal:
		return true
	}
	return false
}

// Refining reports whether workers should run split steps for the node.
func (n *Node) Refining() bool { return n.Status == StatusActive }

// Child returns the centroid of candidate child i (0 or 1).
func (n *Node) Child(i, dim int) []float64 {
	return n.Means[i*dim : (i+1)*dim]
}

// Arena stores split nodes by id. Active and terminal membership is kept
// in compressed bitmaps so the coordinator can walk live partitions in id
// order without scanning tombstones.
type Arena struct {
	dim      int
	nodes    []*Node
	active   *roaring.Bitmap
	terminal *roaring.Bitmap
}

// NewArena returns an empty arena for dim-column rows.
func NewArena(dim int) *Arena {
	return &Arena{
		dim:      dim,
		active:   roaring.New(),
		terminal: roaring.New(),
	}
}

func (a *Arena) Dim() int { return a.dim }

// Len returns the number of ids ever allocated.
func (a *Arena) Len() int { return len(a.nodes) }

// Node returns the node with the given id. It panics on an unknown id.
func (a *Arena) Node(id uint32) *Node { return a.nodes[id] }

func (a *Arena) alloc(parent uint32, depth int) *Node {
	n := &Node{
		ID:       uint32(len(a.nodes)),
		Parent:   parent,
		Depth:    depth,
		Status:   StatusCandidate,
		Centroid: make([]float64, a.dim),
		ZeroID:   core.InvalidClusterID,
		OneID:    core.InvalidClusterID,
	}
	a.nodes = append(a.nodes, n)
	return n
}

// Root creates the root partition holding count rows with the given mean
// and marks it active.
func (a *Arena) Root(centroid []float64, count int64) *Node {
	n := a.alloc(core.InvalidClusterID, 0)
	copy(n.Centroid, centroid)
	n.Count = count
	a.activate(n)
	return n
}

// Spawn reserves two candidate children for parent and seeds their
// centroids with seed0 and seed1.
func (a *Arena) Spawn(parent uint32, seed0, seed1 []float64) (zero, one uint32) {
	p := a.nodes[parent]
	z := a.alloc(parent, p.Depth+1)
	o := a.alloc(parent, p.Depth+1)
	copy(z.Centroid, seed0)
	copy(o.Centroid, seed1)
	p.ZeroID, p.OneID = z.ID, o.ID
	p.Means = make([]float64, 2*a.dim)
	copy(p.Means[:a.dim], seed0)
	copy(p.Means[a.dim:], seed1)
	return z.ID, o.ID
}

// MarkConverged stops split refinement of id until it is decided.
func (a *Arena) MarkConverged(id uint32) {
	n := a.nodes[id]
	if n.Status == StatusActive {
		n.Status = StatusConverged
	}
}

// Accept commits the split of id. The children become active partitions
// with the given statistics and the parent stops owning rows.
func (a *Arena) Accept(id uint32, zero, one Stats) {
	p := a.nodes[id]
	p.Status = StatusCommitted
	a.active.Remove(id)
	for i, st := range [2]Stats{zero, one} {
		c := a.nodes[p.ZeroID]
		if i == 1 {
			c = a.nodes[p.OneID]
		}
		st.Mean(c.Centroid)
		c.Count = st.Count
		c.SSE = st.SSE()
		a.activate(c)
	}
}

// Reject discards the split of id. The children are tombstoned and the
// parent becomes a terminal partition.
func (a *Arena) Reject(id uint32) {
	p := a.nodes[id]
	if p.ZeroID != core.InvalidClusterID {
		a.Tombstone(p.ZeroID)
		a.Tombstone(p.OneID)
	}
	p.Status = StatusTerminal
	a.active.Remove(id)
	a.terminal.Add(id)
}

// Tombstone removes id from every live set.
func (a *Arena) Tombstone(id uint32) {
	a.nodes[id].Status = StatusTombstoned
	a.active.Remove(id)
	a.terminal.Remove(id)
}

func (a *Arena) activate(n *Node) {
	n.Status = StatusActive
	a.active.Add(n.ID)
}

// Active returns the ids of nodes still being refined or awaiting a
// decision, in id order.
func (a *Arena) Active() []uint32 { return a.active.ToArray() }

// Terminal returns the ids of terminal partitions in id order.
func (a *Arena) Terminal() []uint32 { return a.terminal.ToArray() }

// LiveCount returns the number of partitions that currently own rows.
func (a *Arena) LiveCount() int {
	return int(a.active.GetCardinality() + a.terminal.GetCardinality())
}

// IsLive reports whether id names a partition that owns rows.
func (a *Arena) IsLive(id uint32) bool {
	return a.active.Contains(id) || a.terminal.Contains(id)
}

// Live returns every live partition id in id order.
func (a *Arena) Live() []uint32 {
	return roaring.Or(a.active, a.terminal).ToArray()
}

// Renumber maps every terminal node id to a dense cluster index in id
// order. The returned slice is indexed by node id; other ids map to
// core.InvalidClusterID.
func (a *Arena) Renumber() []core.ClusterID {
	out := make([]core.ClusterID, len(a.nodes))
	for i := range out {
		out[i] = core.InvalidClusterID
	}
	it := a.terminal.Iterator()
	var next core.ClusterID
	for it.HasNext() {
		out[it.Next()] = next
		next++
	}
	return out
}
