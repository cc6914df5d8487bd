package engine

import (
	"github.com/23skdu/nclust/internal/cluster"
	"github.com/23skdu/nclust/internal/core"
	"github.com/23skdu/nclust/internal/metrics"
	"github.com/23skdu/nclust/internal/phase"
)

// splitter is divisive x-means. Every live partition refines a two-way
// split with local 2-means steps; once a partition stops moving rows its
// split is accepted or rejected by BIC. K bounds the number of live
// partitions.
type splitter struct {
	kmax, dim int
	arena     *cluster.Arena

	// rowNode maps every row to the arena node of its current partition.
	// Workers write only their own range.
	rowNode []uint32

	// slots lists the refining nodes of the current iteration; slotOf
	// maps a node id to its slot or -1.
	slots  []uint32
	slotOf []int32
	// last holds the child statistics of each slot from the last SplitEM.
	last [][2]cluster.Stats
}

func newSplitter(kmax, dim int) *splitter {
	return &splitter{kmax: kmax, dim: dim, arena: cluster.NewArena(dim)}
}

func (s *splitter) Kind() core.Algorithm { return core.AlgorithmXMeans }

func (s *splitter) Supports(m core.InitMethod) bool {
	return m == core.InitForgy || m == core.InitPlusPlus
}

func (s *splitter) Init(c *Coordinator, _ []float64) error {
	s.rowNode = make([]uint32, c.nrow)
	root := s.arena.Root(make([]float64, s.dim), int64(c.nrow))
	if c.nrow < 2 {
		copy(root.Centroid, c.localRow(0))
		s.arena.Reject(root.ID)
		return nil
	}
	seeds, err := c.seed(c.opts.Init, 2)
	if err != nil {
		return err
	}
	s.arena.Spawn(root.ID, seeds[:s.dim], seeds[s.dim:])
	return nil
}

func (s *splitter) Step(c *Coordinator, iter int) (Progress, error) {
	s.plan()
	if len(s.slots) == 0 {
		return Progress{Done: true}, nil
	}
	if err := c.runPhase(phase.SplitEM); err != nil {
		return Progress{}, err
	}

	total := c.reduce(2*len(s.slots), true)
	changed := make([]int, len(s.slots))
	for _, w := range c.workers {
		for i, n := range w.slotChanged {
			changed[i] += n
		}
	}
	s.last = s.last[:0]
	for i := range s.slots {
		s.last = append(s.last, [2]cluster.Stats{
			copyStats(total.Stats(2 * i)),
			copyStats(total.Stats(2*i + 1)),
		})
	}
	p := Progress{Changed: total.Changed, Objective: total.Objective}
	cluster.ReleaseAccumulator(total)

	var accepted []uint32
	for i, id := range s.slots {
		node := s.arena.Node(id)
		zero, one := s.last[i][0], s.last[i][1]
		for j, st := range [2]cluster.Stats{zero, one} {
			if st.Count > 0 {
				st.Mean(node.Child(j, s.dim))
			}
		}
		parent := zero.Merge(one)
		parent.Mean(node.Centroid)
		node.Count = parent.Count
		node.SSE = parent.SSE()

		if changed[i] != 0 {
			continue
		}
		s.arena.MarkConverged(id)
		if s.decide(c, iter, node, parent, zero, one) {
			accepted = append(accepted, id)
		}
	}

	if len(accepted) > 0 {
		if err := c.runPhase(phase.SplitCommit); err != nil {
			return Progress{}, err
		}
		for _, id := range accepted {
			node := s.arena.Node(id)
			for _, child := range [2]uint32{node.ZeroID, node.OneID} {
				s.spawnSeeds(child)
			}
		}
	}
	p.Done = len(s.arena.Active()) == 0
	return p, nil
}

// decide accepts or rejects the split of a converged node.
func (s *splitter) decide(c *Coordinator, iter int, node *cluster.Node, parent, zero, one cluster.Stats) bool {
	childBIC := cluster.BIC(zero, one)
	parentBIC := cluster.BIC(parent)
	accept := zero.Count >= 2 && one.Count >= 2 &&
		childBIC > parentBIC &&
		s.arena.LiveCount() < s.kmax

	ev := c.log.Debug().
		Int("iter", iter).
		Uint32("node", node.ID).
		Int("depth", node.Depth).
		Int64("rows", parent.Count).
		Float64("parent_bic", parentBIC).
		Float64("child_bic", childBIC)
	if accept {
		s.arena.Accept(node.ID, zero, one)
		metrics.SplitDecisionsTotal.WithLabelValues("accepted").Inc()
		ev.Msg("Split accepted")
		return true
	}
	s.arena.Reject(node.ID)
	metrics.SplitDecisionsTotal.WithLabelValues("rejected").Inc()
	ev.Msg("Split rejected")
	return false
}

// spawnSeeds reserves the children of a freshly committed partition,
// seeded one standard deviation either side of its mean.
func (s *splitter) spawnSeeds(id uint32) {
	node := s.arena.Node(id)
	parent := s.arena.Node(node.Parent)
	st := s.last[s.slotOf[parent.ID]][0]
	if id == parent.OneID {
		st = s.last[s.slotOf[parent.ID]][1]
	}
	sd := make([]float64, s.dim)
	st.StdDev(sd)
	lo := make([]float64, s.dim)
	hi := make([]float64, s.dim)
	for j := range sd {
		lo[j] = node.Centroid[j] - sd[j]
		hi[j] = node.Centroid[j] + sd[j]
	}
	s.arena.Spawn(id, lo, hi)
}

// plan lists the refining nodes and builds the slot index workers use.
func (s *splitter) plan() {
	s.slots = s.slots[:0]
	if cap(s.slotOf) < s.arena.Len() {
		s.slotOf = make([]int32, s.arena.Len())
	}
	s.slotOf = s.slotOf[:s.arena.Len()]
	for i := range s.slotOf {
		s.slotOf[i] = -1
	}
	for _, id := range s.arena.Active() {
		if s.arena.Node(id).Refining() {
			s.slotOf[id] = int32(len(s.slots))
			s.slots = append(s.slots, id)
		}
	}
}

func (s *splitter) Execute(w *Worker, p phase.Phase) error {
	switch p {
	case phase.SplitEM:
		s.splitEM(w)
	case phase.SplitCommit:
		s.commit(w)
	default:
		return unsupportedPhase(w, p)
	}
	return nil
}

// splitEM runs one local 2-means step for every refining partition.
// Rows of converged or terminal partitions are left untouched.
func (s *splitter) splitEM(w *Worker) {
	acc := w.accumulator(2*len(s.slots), true)
	if cap(w.slotChanged) < len(s.slots) {
		w.slotChanged = make([]int, len(s.slots))
	}
	w.slotChanged = w.slotChanged[:len(s.slots)]
	clear(w.slotChanged)

	assignments := w.c.assignments
	cmp := w.c.cmp
	for i := 0; i < w.NRows(); i++ {
		row := w.rows.Start + i
		id := s.rowNode[row]
		node := s.arena.Node(id)
		if !node.Refining() {
			continue
		}
		slot := int(s.slotOf[id])
		v := w.Row(i)

		side, child := 0, node.ZeroID
		best := cmp(v, node.Child(0, s.dim))
		if d := cmp(v, node.Child(1, s.dim)); d < best {
			side, child, best = 1, node.OneID, d
		}
		if assignments[row] != child {
			assignments[row] = child
			w.slotChanged[slot]++
			acc.Changed++
		}
		acc.Add(2*slot+side, v)
		acc.Objective += best
	}
}

// commit moves rows of accepted partitions into the child they were last
// assigned to.
func (s *splitter) commit(w *Worker) {
	for r := w.rows.Start; r < w.rows.End; r++ {
		if s.arena.Node(s.rowNode[r]).Status == cluster.StatusCommitted {
			s.rowNode[r] = w.c.assignments[r]
		}
	}
}

func (s *splitter) Result(c *Coordinator, iters int, converged bool) *core.RunRecord {
	if !converged {
		for _, id := range s.arena.Active() {
			s.arena.Reject(id)
		}
	}
	terminal := s.arena.Terminal()
	index := s.arena.Renumber()

	rec := c.newRecord(len(terminal), iters, converged)
	for r, id := range s.rowNode {
		rec.Assignments[r] = index[id]
	}
	rec.Counts = make([]int64, len(terminal))
	rec.Centroids = make([]float64, 0, len(terminal)*s.dim)
	for i, id := range terminal {
		node := s.arena.Node(id)
		rec.Counts[i] = node.Count
		rec.Centroids = append(rec.Centroids, node.Centroid...)
		rec.Objective += node.SSE
	}
	c.log.Info().
		Int("partitions", len(terminal)).
		Int("nodes", s.arena.Len()).
		Msg("Split tree resolved")
	return rec
}

func copyStats(s cluster.Stats) cluster.Stats {
	return cluster.Stats{
		Count: s.Count,
		Sum:   append([]float64(nil), s.Sum...),
		SumSq: append([]float64(nil), s.SumSq...),
	}
}
