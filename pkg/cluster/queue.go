package cluster

import "container/heap"

// entry snapshots an interface's value when queued. An interface changes version on
// every Update or evidence merge, so entries with an old version are skipped on pop.
type entry struct {
	iface   *Interface
	value   float64
	version int
}

// mergeQueue is a min-heap of interfaces with lazy invalidation.
type mergeQueue struct {
	items   []entry
	compare func(a, b *Interface) int
}

func newMergeQueue(compare func(a, b *Interface) int) *mergeQueue {
	q := &mergeQueue{compare: compare}
	heap.Init(q)
	return q
}

func (q *mergeQueue) Len() int { return len(q.items) }

func (q *mergeQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if c := compareValues(a.value, b.value); c != 0 {
		return c < 0
	}
	return q.compare(a.iface, b.iface) < 0
}

func (q *mergeQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *mergeQueue) Push(x any) { q.items = append(q.items, x.(entry)) }

func (q *mergeQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

func (q *mergeQueue) push(i *Interface) {
	heap.Push(q, entry{iface: i, value: i.Value, version: i.version})
}

// next returns the best interface still current, or nil when none is left.
func (q *mergeQueue) next() *Interface {
	for q.Len() > 0 {
		e := heap.Pop(q).(entry)
		if e.iface.dead || e.version != e.iface.version {
			continue
		}
		return e.iface
	}
	return nil
}
