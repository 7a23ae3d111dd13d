// Package spatial provides a static quadtree for nearest-point queries in
// screen space. An Index is immutable: rebuild it when the points move.
package spatial

import (
	"math"
	"slices"
)

const (
	leafCapacity = 8
	maxDepth     = 16
)

type entry struct {
	x, y float64
	idx  int
}

type node struct {
	minX, minY, maxX, maxY float64
	entries                []entry
	children               *[4]node
}

// Index answers nearest-neighbour queries over a fixed set of items.
type Index[T any] struct {
	items []T
	root  *node
}

// Build indexes items at the positions reported by pos. Items with
// non-finite positions are skipped.
func Build[T any](items []T, pos func(T) (x, y float64)) *Index[T] {
	idx := &Index[T]{items: items}
	if len(items) == 0 {
		return idx
	}

	entries := make([]entry, 0, len(items))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, it := range items {
		x, y := pos(it)
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			continue
		}
		entries = append(entries, entry{x: x, y: y, idx: i})
		minX = math.Min(minX, x)
		minY = math.Min(minY, y)
		maxX = math.Max(maxX, x)
		maxY = math.Max(maxY, y)
	}
	if len(entries) == 0 {
		return idx
	}

	// Square bounds keep the cells square.
	size := math.Max(maxX-minX, maxY-minY)
	if size == 0 {
		size = 1
	}
	idx.root = &node{minX: minX, minY: minY, maxX: minX + size, maxY: minY + size}
	for _, e := range entries {
		idx.root.insert(e, 0)
	}
	return idx
}

func (n *node) insert(e entry, depth int) {
	if n.children == nil {
		n.entries = append(n.entries, e)
		if len(n.entries) > leafCapacity && depth < maxDepth {
			n.split(depth)
		}
		return
	}
	n.child(e.x, e.y).insert(e, depth+1)
}

func (n *node) split(depth int) {
	midX := (n.minX + n.maxX) / 2
	midY := (n.minY + n.maxY) / 2
	n.children = &[4]node{
		{minX: n.minX, minY: n.minY, maxX: midX, maxY: midY},
		{minX: midX, minY: n.minY, maxX: n.maxX, maxY: midY},
		{minX: n.minX, minY: midY, maxX: midX, maxY: n.maxY},
		{minX: midX, minY: midY, maxX: n.maxX, maxY: n.maxY},
	}
	old := n.entries
	n.entries = nil
	for _, e := range old {
		n.child(e.x, e.y).insert(e, depth+1)
	}
}

func (n *node) child(x, y float64) *node {
	midX := (n.minX + n.maxX) / 2
	midY := (n.minY + n.maxY) / 2
	q := 0
	if x >= midX {
		q |= 1
	}
	if y >= midY {
		q |= 2
	}
	return &n.children[q]
}

// distSq is the squared distance from (x, y) to the node's bounds.
func (n *node) distSq(x, y float64) float64 {
	dx := math.Max(math.Max(n.minX-x, 0), x-n.maxX)
	dy := math.Max(math.Max(n.minY-y, 0), y-n.maxY)
	return dx*dx + dy*dy
}

// Len is the number of items the index was built from.
func (idx *Index[T]) Len() int {
	return len(idx.items)
}

// Nearest returns the item closest to (x, y) within maxRadius. Equidistant
// candidates resolve to the one built first.
func (idx *Index[T]) Nearest(x, y, maxRadius float64) (T, bool) {
	var zero T
	if idx.root == nil || maxRadius < 0 {
		return zero, false
	}
	best := -1
	bestD := maxRadius * maxRadius
	idx.root.nearest(x, y, &best, &bestD)
	if best < 0 {
		return zero, false
	}
	return idx.items[best], true
}

func (n *node) nearest(x, y float64, best *int, bestD *float64) {
	if n.distSq(x, y) > *bestD {
		return
	}
	if n.children == nil {
		for _, e := range n.entries {
			dx, dy := e.x-x, e.y-y
			d := dx*dx + dy*dy
			if d > *bestD {
				continue
			}
			if d < *bestD || *best < 0 || e.idx < *best {
				*best = e.idx
				*bestD = d
			}
		}
		return
	}
	// Visit the quadrant holding the query point first to tighten the bound early.
	first := n.child(x, y)
	first.nearest(x, y, best, bestD)
	for i := range n.children {
		if c := &n.children[i]; c != first {
			c.nearest(x, y, best, bestD)
		}
	}
}

// Within returns every item within r of (x, y) in build order.
func (idx *Index[T]) Within(x, y, r float64) []T {
	if idx.root == nil || r < 0 {
		return nil
	}
	var hits []int
	idx.root.within(x, y, r*r, &hits)
	slices.Sort(hits)
	out := make([]T, len(hits))
	for i, h := range hits {
		out[i] = idx.items[h]
	}
	return out
}

func (n *node) within(x, y, rSq float64, hits *[]int) {
	if n.distSq(x, y) > rSq {
		return
	}
	if n.children == nil {
		for _, e := range n.entries {
			dx, dy := e.x-x, e.y-y
			if dx*dx+dy*dy <= rSq {
				*hits = append(*hits, e.idx)
			}
		}
		return
	}
	for i := range n.children {
		n.children[i].within(x, y, rSq, hits)
	}
}
