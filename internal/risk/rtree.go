package risk

import (
	"container/heap"
	"math"
	"sort"
)

// Static STR-packed R-tree over geometry bounding boxes. Built once at
// load time; queries are read-only, so the tree needs no locking.

const rtreeLeafSize = 16

type bounds struct {
	minX, minY, maxX, maxY float64
}

func (b bounds) extend(o bounds) bounds {
	return bounds{
		minX: math.Min(b.minX, o.minX),
		minY: math.Min(b.minY, o.minY),
		maxX: math.Max(b.maxX, o.maxX),
		maxY: math.Max(b.maxY, o.maxY),
	}
}

func (b bounds) centerX() float64 { return (b.minX + b.maxX) / 2 }
func (b bounds) centerY() float64 { return (b.minY + b.maxY) / 2 }

type rtreeEntry struct {
	bounds bounds
	idx    int
}

type rtreeNode struct {
	bounds   bounds
	children []*rtreeNode
	entries  []rtreeEntry // set only on leaves
}

type rtree struct {
	root *rtreeNode
	size int
}

// newRTree bulk-loads entries with the Sort-Tile-Recursive packing scheme:
// sort by center X, cut into vertical slices, sort each slice by center Y,
// pack runs of rtreeLeafSize into leaves, then build parent levels the
// same way until a single root remains.
func newRTree(entries []rtreeEntry) *rtree {
	t := &rtree{size: len(entries)}
	if len(entries) == 0 {
		return t
	}

	sorted := make([]rtreeEntry, len(entries))
	copy(sorted, entries)

	leafCount := (len(sorted) + rtreeLeafSize - 1) / rtreeLeafSize
	sliceCount := int(math.Ceil(math.Sqrt(float64(leafCount))))
	sliceSize := sliceCount * rtreeLeafSize

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].bounds.centerX() < sorted[j].bounds.centerX()
	})

	var leaves []*rtreeNode
	for start := 0; start < len(sorted); start += sliceSize {
		end := min(start+sliceSize, len(sorted))
		slice := sorted[start:end]
		sort.Slice(slice, func(i, j int) bool {
			return slice[i].bounds.centerY() < slice[j].bounds.centerY()
		})
		for ls := 0; ls < len(slice); ls += rtreeLeafSize {
			le := min(ls+rtreeLeafSize, len(slice))
			leaf := &rtreeNode{entries: slice[ls:le]}
			leaf.bounds = leaf.entries[0].bounds
			for _, e := range leaf.entries[1:] {
				leaf.bounds = leaf.bounds.extend(e.bounds)
			}
			leaves = append(leaves, leaf)
		}
	}

	t.root = packLevel(leaves)
	return t
}

// packLevel groups nodes into parents until one root remains.
func packLevel(nodes []*rtreeNode) *rtreeNode {
	for len(nodes) > 1 {
		sort.Slice(nodes, func(i, j int) bool {
			return nodes[i].bounds.centerX() < nodes[j].bounds.centerX()
		})
		var parents []*rtreeNode
		for start := 0; start < len(nodes); start += rtreeLeafSize {
			end := min(start+rtreeLeafSize, len(nodes))
			p := &rtreeNode{children: nodes[start:end:end]}
			p.bounds = p.children[0].bounds
			for _, c := range p.children[1:] {
				p.bounds = p.bounds.extend(c.bounds)
			}
			parents = append(parents, p)
		}
		nodes = parents
	}
	return nodes[0]
}

// queueItem is either an internal node or a leaf entry, keyed by the
// lower-bound distance from the query point to its bounding box.
type queueItem struct {
	node  *rtreeNode
	entry *rtreeEntry
	dist  float64
}

type searchQueue []queueItem

func (q searchQueue) Len() int           { return len(q) }
func (q searchQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q searchQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *searchQueue) Push(x any)        { *q = append(*q, x.(queueItem)) }
func (q *searchQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// tieEpsilon is the relative tolerance under which two distances count
// as equal. Projecting mirrored geometries yields distances that differ
// in the last ulp, which would otherwise starve the tie-break.
const tieEpsilon = 1e-9

// sameDist reports whether a and b are equal within tieEpsilon.
func sameDist(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= tieEpsilon*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// nearest runs a best-first search for the entry minimizing exact(idx).
// Candidates whose bounding-box lower bound is within tieEpsilon of the
// current best are still examined, so ties resolve by less(candidate,
// best) no matter the heap's pop order. Returns (-1, +Inf) on an empty
// tree.
func (t *rtree) nearest(m metric, exact func(idx int) float64, less func(a, b int) bool) (int, float64) {
	bestIdx, bestDist := -1, math.Inf(1)
	if t.root == nil {
		return bestIdx, bestDist
	}

	q := &searchQueue{{node: t.root, dist: m.distanceToBox(t.root.bounds)}}
	heap.Init(q)

	for q.Len() > 0 {
		item := heap.Pop(q).(queueItem)
		if item.dist > bestDist && !sameDist(item.dist, bestDist) {
			break
		}
		if item.entry != nil {
			d := exact(item.entry.idx)
			switch {
			case sameDist(d, bestDist):
				if bestIdx >= 0 && less(item.entry.idx, bestIdx) {
					bestIdx = item.entry.idx
					bestDist = math.Min(bestDist, d)
				}
			case d < bestDist:
				bestIdx, bestDist = item.entry.idx, d
			}
			continue
		}
		for i := range item.node.entries {
			e := &item.node.entries[i]
			if d := m.distanceToBox(e.bounds); d <= bestDist || sameDist(d, bestDist) {
				heap.Push(q, queueItem{entry: e, dist: d})
			}
		}
		for _, c := range item.node.children {
			if d := m.distanceToBox(c.bounds); d <= bestDist || sameDist(d, bestDist) {
				heap.Push(q, queueItem{node: c, dist: d})
			}
		}
	}
	return bestIdx, bestDist
}
