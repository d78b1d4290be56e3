package watershed

import (
	"container/heap"

	"voxelseg/pkg/voxel"
)

// frontier is the shared priority queue of boundary voxels. It is a binary heap over
// voxel.Compare, so equal scores never collide: coordinates break every tie.
//
// A voxel enters the frontier exactly once, when it goes from unlabelled to labelled,
// and its owner is read back from the label map when it is popped. Fusions relabel the
// map, so entries never go stale and no removal is needed.
type frontier struct {
	items      []voxel.Voxel
	decreasing bool
}

func newFrontier(decreasing bool) *frontier {
	f := &frontier{decreasing: decreasing}
	heap.Init(f)
	return f
}

// Len returns the number of items in the heap.
func (f *frontier) Len() int { return len(f.items) }

// Less puts the most extreme value first in the flood direction.
func (f *frontier) Less(i, j int) bool {
	return voxel.Compare(f.items[i], f.items[j], f.decreasing) < 0
}

// Swap swaps two elements in the heap.
func (f *frontier) Swap(i, j int) { f.items[i], f.items[j] = f.items[j], f.items[i] }

// Push implements heap.Interface; use push instead.
func (f *frontier) Push(x any) { f.items = append(f.items, x.(voxel.Voxel)) }

// Pop implements heap.Interface; use pop instead.
func (f *frontier) Pop() any {
	old := f.items
	n := len(old)
	item := old[n-1]
	f.items = old[:n-1]
	return item
}

func (f *frontier) push(v voxel.Voxel) { heap.Push(f, v) }

func (f *frontier) pop() voxel.Voxel { return heap.Pop(f).(voxel.Voxel) }
