// Package tree turns flat parent-referencing records into nested structures.
package tree

import (
	"cmp"
	"slices"
)

// Accessor reads the hierarchy attributes of a record.
type Accessor[T any, K cmp.Ordered] struct {
	ID func(T) K
	// Parent returns nil for roots.
	Parent func(T) *K
	// Order sorts siblings; ties fall back to ID. Optional.
	Order func(T) int
	// Expand reports whether children are attached below a record. Optional, nil expands all.
	Expand func(T) bool
}

func (a Accessor[T, K]) order(rec T) int {
	if a.Order == nil {
		return 0
	}
	return a.Order(rec)
}

func (a Accessor[T, K]) expands(rec T) bool {
	return a.Expand == nil || a.Expand(rec)
}

// Node is one record of a full tree.
type Node[T any] struct {
	Record   T          `json:"record"`
	Children []*Node[T] `json:"children"`
}

// Option is the lightweight projection used by selection widgets.
type Option[K cmp.Ordered] struct {
	Value    K            `json:"value"`
	Label    string       `json:"label"`
	Order    int          `json:"order"`
	Children []*Option[K] `json:"children"`
}

// index holds record positions grouped by parent id, each group already sorted.
type index[T any, K cmp.Ordered] struct {
	records  []T
	roots    []int
	children map[K][]int
}

func newIndex[T any, K cmp.Ordered](records []T, a Accessor[T, K]) *index[T, K] {
	idx := &index[T, K]{records: records, children: make(map[K][]int)}

	known := make(map[K]struct{}, len(records))
	for _, rec := range records {
		known[a.ID(rec)] = struct{}{}
	}
	for i, rec := range records {
		parent := a.Parent(rec)
		if parent == nil {
			idx.roots = append(idx.roots, i)
			continue
		}
		if _, ok := known[*parent]; ok {
			idx.children[*parent] = append(idx.children[*parent], i)
		}
	}

	bySiblingOrder := func(x, y int) int {
		if c := cmp.Compare(a.order(records[x]), a.order(records[y])); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(records[x]), a.ID(records[y]))
	}
	slices.SortFunc(idx.roots, bySiblingOrder)
	for parent := range idx.children {
		slices.SortFunc(idx.children[parent], bySiblingOrder)
	}
	return idx
}

type frame[N any] struct {
	node *N
	pos  int
}

// Assemble builds the forest once and projects every reachable record through project.
// Records whose parent is absent, and cycles not hanging off a root, are unreachable and
// therefore dropped.
func Assemble[T any, K cmp.Ordered, N any](records []T, a Accessor[T, K], project func(T) N, attach func(parent *N, children []*N)) []*N {
	idx := newIndex(records, a)
	visited := make([]bool, len(records))

	roots := make([]*N, 0, len(idx.roots))
	stack := make([]frame[N], 0, len(records))
	for _, pos := range idx.roots {
		n := project(records[pos])
		visited[pos] = true
		roots = append(roots, &n)
		stack = append(stack, frame[N]{node: &n, pos: pos})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		rec := records[f.pos]
		if !a.expands(rec) {
			attach(f.node, []*N{})
			continue
		}
		positions := idx.children[a.ID(rec)]
		children := make([]*N, 0, len(positions))
		for _, pos := range positions {
			if visited[pos] {
				continue
			}
			visited[pos] = true
			n := project(records[pos])
			children = append(children, &n)
			stack = append(stack, frame[N]{node: &n, pos: pos})
		}
		attach(f.node, children)
	}
	return roots
}

// Build returns the full node tree with every sibling group sorted.
func Build[T any, K cmp.Ordered](records []T, a Accessor[T, K]) []*Node[T] {
	return Assemble(records, a,
		func(rec T) Node[T] { return Node[T]{Record: rec} },
		func(parent *Node[T], children []*Node[T]) { parent.Children = children },
	)
}

// BuildOptions returns the {value, label, order, children} tree.
func BuildOptions[T any, K cmp.Ordered](records []T, a Accessor[T, K], label func(T) string) []*Option[K] {
	return Assemble(records, a,
		func(rec T) Option[K] {
			return Option[K]{Value: a.ID(rec), Label: label(rec), Order: a.order(rec)}
		},
		func(parent *Option[K], children []*Option[K]) { parent.Children = children },
	)
}

// Descendants returns roots followed by every record below them in breadth-first order.
// Each id appears once; Expand is ignored.
func Descendants[T any, K cmp.Ordered](records []T, a Accessor[T, K], roots ...K) []K {
	idx := newIndex(records, a)

	seen := make(map[K]struct{}, len(records))
	queue := make([]K, 0, len(roots))
	for _, id := range roots {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			queue = append(queue, id)
		}
	}
	for i := 0; i < len(queue); i++ {
		for _, pos := range idx.children[queue[i]] {
			id := a.ID(records[pos])
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			queue = append(queue, id)
		}
	}
	return queue
}
