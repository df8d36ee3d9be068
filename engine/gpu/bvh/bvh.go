// Package bvh builds and refits bounding volume hierarchies over axis-aligned boxes. The reference
// device uses it for both bottom-level (triangle) and top-level (instance) structures.
package bvh

import (
	"time"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/log"
	"github.com/chewxy/math32"
)

// The number of centroid bins evaluated per axis when scoring splits.
const binCount = 12

// The builder will not attempt to split a node whose centroid bounds are thinner than this
// along every axis.
const minSideLength float32 = 1e-6

var logger = log.New("bvh")

// Node is one node of a flattened tree. Interior nodes have Left/Right child indices; leaves have
// Left == -1 and reference Count items of Tree.Order starting at First.
type Node struct {
	Bounds common.AABB
	Left   int32
	Right  int32
	First  int32
	Count  int32
}

// Leaf reports whether the node is a leaf.
func (n *Node) Leaf() bool {
	return n.Left < 0
}

// Tree is a flattened hierarchy. Parents are stored before their children, so iterating Nodes
// in reverse visits every child before its parent.
type Tree struct {
	Nodes []Node
	// Order maps leaf item slots to caller item indices.
	Order []int32
	// MaxDepth is the depth of the deepest leaf.
	MaxDepth int
}

// Bounds returns the root bounds, or an empty box for an empty tree.
func (t *Tree) Bounds() common.AABB {
	if len(t.Nodes) == 0 {
		return common.EmptyAABB()
	}
	return t.Nodes[0].Bounds
}

type builder struct {
	items   []common.AABB
	centers []common.Vec3
	order   []int32
	nodes   []Node

	maxLeafItems int
	maxDepth     int
	leafs        int
}

// Build constructs a tree over items using the surface area heuristic (SAH):
// score = left count * left area + right count * right area, lower is better. A node becomes a
// leaf when it holds at most maxLeafItems items or no split scores better than the node itself.
//
// Parameters:
//   - items: one bounding box per item
//   - maxLeafItems: the item count at or below which a leaf is always created
//
// Returns:
//   - *Tree: the flattened tree; empty when items is empty
func Build(items []common.AABB, maxLeafItems int) *Tree {
	if maxLeafItems < 1 {
		maxLeafItems = 1
	}
	b := &builder{
		items:        items,
		centers:      make([]common.Vec3, len(items)),
		order:        make([]int32, len(items)),
		nodes:        make([]Node, 0, 2*len(items)),
		maxLeafItems: maxLeafItems,
	}
	for i, box := range items {
		b.centers[i] = box.Center()
		b.order[i] = int32(i)
	}

	start := time.Now()
	if len(items) > 0 {
		b.partition(0, len(items), 0)
	}
	logger.Debugf(
		"BVH build time: %s, items: %d, maxDepth: %d, nodes: %d, leafs: %d",
		time.Since(start), len(items), b.maxDepth, len(b.nodes), b.leafs,
	)
	return &Tree{Nodes: b.nodes, Order: b.order, MaxDepth: b.maxDepth}
}

type bin struct {
	bounds common.AABB
	count  int
}

// Partition order[first:first+count] and return the node index.
func (b *builder) partition(first, count, depth int) int32 {
	if depth > b.maxDepth {
		b.maxDepth = depth
	}

	bounds := common.EmptyAABB()
	centroidBounds := common.EmptyAABB()
	for _, idx := range b.order[first : first+count] {
		bounds = bounds.Union(b.items[idx])
		centroidBounds = centroidBounds.Extend(b.centers[idx])
	}

	nodeIndex := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Bounds: bounds, Left: -1, Right: -1, First: int32(first), Count: int32(count)})

	if count <= b.maxLeafItems {
		b.leafs++
		return nodeIndex
	}

	bestScore := float32(count) * bounds.HalfArea()
	bestAxis, bestSplit := -1, 0

	side := common.Sub3(centroidBounds.Max, centroidBounds.Min)
	for axis := 0; axis < 3; axis++ {
		if side[axis] < minSideLength {
			continue
		}

		var bins [binCount]bin
		for i := range bins {
			bins[i].bounds = common.EmptyAABB()
		}
		scale := float32(binCount) / side[axis]
		for _, idx := range b.order[first : first+count] {
			k := binIndex(b.centers[idx][axis], centroidBounds.Min[axis], scale)
			bins[k].count++
			bins[k].bounds = bins[k].bounds.Union(b.items[idx])
		}

		// Sweep from the right to collect suffix areas, then from the left to score.
		var rightArea [binCount]float32
		var rightCount [binCount]int
		acc := common.EmptyAABB()
		n := 0
		for k := binCount - 1; k > 0; k-- {
			acc = acc.Union(bins[k].bounds)
			n += bins[k].count
			rightArea[k] = acc.HalfArea()
			rightCount[k] = n
		}
		acc = common.EmptyAABB()
		n = 0
		for k := 0; k < binCount-1; k++ {
			acc = acc.Union(bins[k].bounds)
			n += bins[k].count
			if n == 0 || rightCount[k+1] == 0 {
				continue
			}
			score := float32(n)*acc.HalfArea() + float32(rightCount[k+1])*rightArea[k+1]
			if score < bestScore {
				bestScore = score
				bestAxis = axis
				bestSplit = k + 1
			}
		}
	}

	// If no split improves on the node itself create a leaf
	if bestAxis < 0 {
		b.leafs++
		return nodeIndex
	}

	// In-place partition of the item range around the chosen bin boundary
	scale := float32(binCount) / side[bestAxis]
	lo, hi := first, first+count-1
	for lo <= hi {
		if binIndex(b.centers[b.order[lo]][bestAxis], centroidBounds.Min[bestAxis], scale) < bestSplit {
			lo++
		} else {
			b.order[lo], b.order[hi] = b.order[hi], b.order[lo]
			hi--
		}
	}
	leftCount := lo - first

	left := b.partition(first, leftCount, depth+1)
	right := b.partition(lo, count-leftCount, depth+1)
	b.nodes[nodeIndex].Left = left
	b.nodes[nodeIndex].Right = right
	b.nodes[nodeIndex].Count = 0
	return nodeIndex
}

func binIndex(v, min, scale float32) int {
	k := int((v - min) * scale)
	if k < 0 {
		return 0
	}
	if k >= binCount {
		return binCount - 1
	}
	return k
}

// Refit recomputes every node's bounds from new item bounds without changing the topology.
// items must have the same length as the slice the tree was built from.
//
// Parameters:
//   - items: the new per-item bounds
func (t *Tree) Refit(items []common.AABB) {
	for i := len(t.Nodes) - 1; i >= 0; i-- {
		n := &t.Nodes[i]
		if n.Leaf() {
			box := common.EmptyAABB()
			for _, idx := range t.Order[n.First : n.First+n.Count] {
				box = box.Union(items[idx])
			}
			n.Bounds = box
			continue
		}
		n.Bounds = t.Nodes[n.Left].Bounds.Union(t.Nodes[n.Right].Bounds)
	}
}

// Visitor is called for every leaf item whose node the ray enters. It returns the possibly
// shortened tMax and whether traversal should stop.
type Visitor func(item int32, tMax float32) (float32, bool)

// Traverse walks the tree front to back along r, visiting items of every leaf whose bounds the
// ray enters within [tMin, tMax]. Boxes entered exactly at tMax are still visited so equal-distance
// hits in other subtrees are seen.
//
// Parameters:
//   - r: the ray
//   - tMin: minimum distance
//   - tMax: maximum distance
//   - visit: the leaf item callback
func (t *Tree) Traverse(r common.Ray, tMin, tMax float32, visit Visitor) {
	if len(t.Nodes) == 0 || math32.IsNaN(tMax) {
		return
	}
	invDir := common.InverseDirection(r.Direction)

	if _, _, ok := t.Nodes[0].Bounds.IntersectRay(r, invDir, tMin, tMax); !ok {
		return
	}
	stack := make([]int32, 1, 64)

	for len(stack) > 0 {
		n := &t.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if n.Leaf() {
			for _, idx := range t.Order[n.First : n.First+n.Count] {
				var stop bool
				if tMax, stop = visit(idx, tMax); stop {
					return
				}
			}
			continue
		}

		ln, _, lok := t.Nodes[n.Left].Bounds.IntersectRay(r, invDir, tMin, tMax)
		rn, _, rok := t.Nodes[n.Right].Bounds.IntersectRay(r, invDir, tMin, tMax)
		switch {
		case lok && rok:
			// Push the far child first so the near one is popped next
			if ln <= rn {
				stack = append(stack, n.Right, n.Left)
			} else {
				stack = append(stack, n.Left, n.Right)
			}
		case lok:
			stack = append(stack, n.Left)
		case rok:
			stack = append(stack, n.Right)
		}
	}
}
