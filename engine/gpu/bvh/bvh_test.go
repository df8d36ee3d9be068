package bvh

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cornerBoxes() []common.AABB {
	return []common.AABB{
		{Min: common.Vec3{-2, 0, -2}, Max: common.Vec3{-1, 1, -1}},
		{Min: common.Vec3{1, 0, -2}, Max: common.Vec3{2, 1, -1}},
		{Min: common.Vec3{-2, 0, 1}, Max: common.Vec3{-1, 1, 2}},
		{Min: common.Vec3{1, 0, 1}, Max: common.Vec3{2, 1, 2}},
	}
}

func leafItems(tree *Tree) [][]int32 {
	var out [][]int32
	for _, n := range tree.Nodes {
		if n.Leaf() {
			out = append(out, tree.Order[n.First:n.First+n.Count])
		}
	}
	return out
}

func TestBuildLeafSizes(t *testing.T) {
	tree := Build(cornerBoxes(), 1)
	assert.Len(t, tree.Nodes, 7)
	leaves := leafItems(tree)
	require.Len(t, leaves, 4)
	for _, l := range leaves {
		assert.Len(t, l, 1)
	}

	tree = Build(cornerBoxes(), 2)
	assert.Len(t, tree.Nodes, 3)
	for _, l := range leafItems(tree) {
		assert.Len(t, l, 2)
	}
}

func TestParentsPrecedeChildren(t *testing.T) {
	tree := Build(cornerBoxes(), 1)
	for i, n := range tree.Nodes {
		if n.Leaf() {
			continue
		}
		assert.Greater(t, n.Left, int32(i))
		assert.Greater(t, n.Right, int32(i))
	}
	assert.Equal(t, common.Vec3{-2, 0, -2}, tree.Bounds().Min)
	assert.Equal(t, common.Vec3{2, 1, 2}, tree.Bounds().Max)
}

func closest(tree *Tree, boxes []common.AABB, r common.Ray) int32 {
	inv := common.InverseDirection(r.Direction)
	best := int32(-1)
	tree.Traverse(r, 0, 1e30, func(item int32, tMax float32) (float32, bool) {
		if tn, _, ok := boxes[item].IntersectRay(r, inv, 0, tMax); ok && (tn < tMax || best < 0) {
			best = item
			return tn, false
		}
		return tMax, false
	})
	return best
}

func TestTraverseFindsNearest(t *testing.T) {
	boxes := cornerBoxes()
	tree := Build(boxes, 1)

	hit := closest(tree, boxes, common.Ray{Origin: common.Vec3{-1.5, 0.5, -10}, Direction: common.Vec3{0, 0, 1}})
	assert.Equal(t, int32(0), hit)

	hit = closest(tree, boxes, common.Ray{Origin: common.Vec3{1.5, 0.5, 10}, Direction: common.Vec3{0, 0, -1}})
	assert.Equal(t, int32(3), hit)

	hit = closest(tree, boxes, common.Ray{Origin: common.Vec3{0, 0.5, -10}, Direction: common.Vec3{0, 0, 1}})
	assert.Equal(t, int32(-1), hit)
}

func TestTraverseStops(t *testing.T) {
	boxes := cornerBoxes()
	tree := Build(boxes, 1)
	visits := 0
	tree.Traverse(common.Ray{Origin: common.Vec3{1.5, 0.5, -10}, Direction: common.Vec3{0, 0, 1}}, 0, 100, func(int32, float32) (float32, bool) {
		visits++
		return 100, true
	})
	assert.Equal(t, 1, visits)
}

func TestRefitFollowsMovedItems(t *testing.T) {
	boxes := cornerBoxes()
	tree := Build(boxes, 1)

	moved := make([]common.AABB, len(boxes))
	for i, b := range boxes {
		moved[i] = common.AABB{Min: common.Add3(b.Min, common.Vec3{0, 10, 0}), Max: common.Add3(b.Max, common.Vec3{0, 10, 0})}
	}
	tree.Refit(moved)
	assert.Equal(t, float32(10), tree.Bounds().Min[1])

	r := common.Ray{Origin: common.Vec3{-1.5, 10.5, -10}, Direction: common.Vec3{0, 0, 1}}
	hit := closest(tree, moved, r)
	assert.Equal(t, int32(0), hit)

	hit = closest(tree, moved, common.Ray{Origin: common.Vec3{-1.5, 0.5, -10}, Direction: common.Vec3{0, 0, 1}})
	assert.Equal(t, int32(-1), hit)
}

func TestEmptyTree(t *testing.T) {
	tree := Build(nil, 4)
	assert.Empty(t, tree.Nodes)
	assert.True(t, tree.Bounds().Empty())
	tree.Traverse(common.Ray{Direction: common.Vec3{0, 0, 1}}, 0, 1, func(int32, float32) (float32, bool) {
		t.Fatal("visited an empty tree")
		return 0, true
	})
}

func TestCoincidentCentroidsFormOneLeaf(t *testing.T) {
	box := common.AABB{Min: common.Vec3{0, 0, 0}, Max: common.Vec3{1, 1, 1}}
	tree := Build([]common.AABB{box, box, box, box, box}, 2)
	require.Len(t, tree.Nodes, 1)
	assert.Len(t, leafItems(tree)[0], 5)
}
