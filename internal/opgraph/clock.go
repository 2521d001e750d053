package opgraph

import "automerge/internal/actor"

// Graph is the hash DAG of applied Changes.
type Graph struct {
	changes map[actor.ChangeHash]*Change
	order []actor.ChangeHash // topological application order
	heads map[actor.ChangeHash]bool
	// children maps a hash to the hashes of changes that directly depend on it.
	children map[actor.ChangeHash][]actor.ChangeHash
	// seqOf tracks, per actor (hex string), the hash applied at each seq, to
	// detect DuplicateSeq.
	seqOf map[string]map[uint64]actor.ChangeHash

	pending map[actor.ChangeHash]*Change // buffered, deps not yet satisfied

	index map[actor.ChangeHash]int // hash -> position in order
}

func NewGraph() *Graph {
	return &Graph{
		changes: make(map[actor.ChangeHash]*Change),
		heads: make(map[actor.ChangeHash]bool),
		children: make(map[actor.ChangeHash][]actor.ChangeHash),
		seqOf: make(map[string]map[uint64]actor.ChangeHash),
		pending: make(map[actor.ChangeHash]*Change),
		index: make(map[actor.ChangeHash]int),
	}
}

func (g *Graph) Has(h actor.ChangeHash) bool {
	_, ok := g.changes[h]
	return ok
}

func (g *Graph) Get(h actor.ChangeHash) (*Change, bool) {
	c, ok := g.changes[h]
	return c, ok
}

// Heads returns the current set of heads: applied changes with no applied
// child.
func (g *Graph) Heads() []actor.ChangeHash {
	out := make([]actor.ChangeHash, 0, len(g.heads))
	for h := range g.heads {
		out = append(out, h)
	}
	return actor.SortHashes(out)
}

// Len returns the number of applied changes.
func (g *Graph) Len() int { return len(g.changes) }

// Changes returns applied changes in topological application order.
func (g *Graph) Changes() []*Change {
	out := make([]*Change, len(g.order))
	for i, h := range g.order {
		out[i] = g.changes[h]
	}
	return out
}

// ErrDuplicateSeq is returned when a change reuses an (actor, seq) pair
// already occupied by a change with a different hash.
type ErrDuplicateSeq struct {
	Actor actor.ID
	Seq uint64
}

func (e *ErrDuplicateSeq) Error() string {
	return "opgraph: duplicate seq " + e.Actor.String()
}

// Apply attempts to apply c. If any of its deps are missing, c is buffered
// and (nil, nil) is returned. If c
// (by hash) is already applied, this is a silent no-op.
//
// Applying c may transitively unblock buffered changes; all changes that
// became applied as a result (including c itself) are returned in
// topological order.
func (g *Graph) Apply(c *Change) ([]*Change, error) {
	if g.Has(c.Hash) {
		return nil, nil
	}
	if _, ok := g.pending[c.Hash]; ok {
		return nil, nil
	}
	if err := g.checkSeq(c); err != nil {
		return nil, err
	}
	g.pending[c.Hash] = c
	return g.drain(), nil
}

func (g *Graph) checkSeq(c *Change) error {
	key := c.Actor.String()
	if m, ok := g.seqOf[key]; ok {
		if existing, ok := m[c.Seq]; ok && existing != c.Hash {
			return &ErrDuplicateSeq{Actor: c.Actor, Seq: c.Seq}
		}
	}
	return nil
}

func (g *Graph) ready(c *Change) bool {
	for _, d := range c.Deps {
		if !g.Has(d) {
			return false
		}
	}
	return true
}

// drain repeatedly scans pending changes, applying any whose deps are now
// satisfied, until a fixed point is reached.
func (g *Graph) drain() []*Change {
	var applied []*Change
	for {
		progressed := false
		for h, c := range g.pending {
			if !g.ready(c) {
				continue
			}
			delete(g.pending, h)
			g.commit(c)
			applied = append(applied, c)
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return applied
}

// IndexOf returns the topological application index of an applied change,
// or -1 if h is not applied.
func (g *Graph) IndexOf(h actor.ChangeHash) int {
	if i, ok := g.index[h]; ok {
		return i
	}
	return -1
}

func (g *Graph) commit(c *Change) {
	g.changes[c.Hash] = c
	g.index[c.Hash] = len(g.order)
	g.order = append(g.order, c.Hash)
	g.heads[c.Hash] = true
	for _, d := range c.Deps {
		delete(g.heads, d)
	}
	key := c.Actor.String()
	m, ok := g.seqOf[key]
	if !ok {
		m = make(map[uint64]actor.ChangeHash)
		g.seqOf[key] = m
	}
	m[c.Seq] = c.Hash
	for _, d := range c.Deps {
		g.children[d] = append(g.children[d], c.Hash)
	}
}

// Pending returns the deduplicated hashes that currently buffered changes
// depend on but that are not yet applied.
func (g *Graph) Pending() (missing []actor.ChangeHash) {
	seen := make(map[actor.ChangeHash]bool)
	for _, c := range g.pending {
		for _, d := range c.Deps {
			if !g.Has(d) && !seen[d] {
				seen[d] = true
				missing = append(missing, d)
			}
		}
	}
	return missing
}

// IsAncestor reports whether `ancestor` is in the causal closure of any
// hash in `of` (i.e. ancestor == one of `of`, or a transitive dep).
func (g *Graph) IsAncestor(of []actor.ChangeHash, ancestor actor.ChangeHash) bool {
	closure := g.Closure(of)
	return closure[ancestor]
}

// Closure returns the set of hashes reachable by following deps backward
// from `heads` (inclusive).
func (g *Graph) Closure(heads []actor.ChangeHash) map[actor.ChangeHash]bool {
	seen := make(map[actor.ChangeHash]bool)
	stack := append([]actor.ChangeHash{}, heads...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[h] {
			continue
		}
		seen[h] = true
		c, ok := g.changes[h]
		if !ok {
			continue
		}
		stack = append(stack, c.Deps...)
	}
	return seen
}

// MissingDeps reports any hashes in `deps` not yet applied.
func MissingDeps(g *Graph, deps []actor.ChangeHash) []actor.ChangeHash {
	var missing []actor.ChangeHash
	for _, d := range deps {
		if !g.Has(d) {
			missing = append(missing, d)
		}
	}
	return missing
}
