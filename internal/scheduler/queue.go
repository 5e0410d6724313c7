package scheduler

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/Padu76/lifeOS-sub000/internal"
)

type entry struct {
	item     internal.ScheduledIntervention
	index    int // position in the due heap, -1 when not queued
	inFlight bool
}

// dueHeap orders queued entries by due time.
type dueHeap []*entry

func (h dueHeap) Len() int           { return len(h) }
func (h dueHeap) Less(i, j int) bool { return h[i].item.DueAt.Before(h[j].item.DueAt) }
func (h dueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *dueHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// userQueue is the single owner of one user's interventions; every field is guarded by mu.
type userQueue struct {
	mu     sync.Mutex
	due    dueHeap
	items  map[string]*entry
	maxGap time.Duration // largest min gap requested so far
}

func newUserQueue() *userQueue {
	return &userQueue{items: make(map[string]*entry)}
}

func (q *userQueue) add(e *entry) {
	q.items[e.item.ID] = e
	if e.item.State == internal.StatePending {
		heap.Push(&q.due, e)
	} else {
		e.index = -1
	}
}

func (q *userQueue) requeue(e *entry) {
	heap.Push(&q.due, e)
}

func (q *userQueue) remove(e *entry) {
	if e.index >= 0 {
		heap.Remove(&q.due, e.index)
	}
}

// forget drops an entry that no longer counts toward any limit.
func (q *userQueue) forget(id string) {
	delete(q.items, id)
}

// prune drops deliveries anchored before cutoff and returns their ids.
func (q *userQueue) prune(cutoff time.Time) []string {
	var ids []string
	for id, e := range q.items {
		if e.item.State != internal.StateDelivered {
			continue
		}
		if at, _ := anchor(e.item); at.Before(cutoff) {
			delete(q.items, id)
			ids = append(ids, id)
		}
	}
	return ids
}

// takeDue pops every pending entry due at or before now and marks it in flight.
func (q *userQueue) takeDue(now time.Time) []*entry {
	var out []*entry
	for q.due.Len() > 0 && !q.due[0].item.DueAt.After(now) {
		e := heap.Pop(&q.due).(*entry)
		e.inFlight = true
		out = append(out, e)
	}
	return out
}

// anchor is the moment an item occupies in the user's schedule.
func anchor(it internal.ScheduledIntervention) (time.Time, bool) {
	switch it.State {
	case internal.StateDelivered:
		if it.DeliveredAt != nil {
			return *it.DeliveredAt, true
		}
		return it.DueAt, true
	case internal.StatePending:
		return it.DueAt, true
	default:
		return time.Time{}, false
	}
}

func (q *userQueue) countOnDay(day time.Time) int {
	y, m, d := day.Date()
	n := 0
	for _, e := range q.items {
		at, ok := anchor(e.item)
		if !ok {
			continue
		}
		ay, am, ad := at.In(day.Location()).Date()
		if ay == y && am == m && ad == d {
			n++
		}
	}
	return n
}

// withinGap reports whether any delivered or pending item sits closer than gap to at.
func (q *userQueue) withinGap(at time.Time, gap time.Duration) bool {
	if gap <= 0 {
		return false
	}
	for _, e := range q.items {
		ref, ok := anchor(e.item)
		if !ok {
			continue
		}
		diff := at.Sub(ref)
		if diff < 0 {
			diff = -diff
		}
		if diff < gap {
			return true
		}
	}
	return false
}

func (q *userQueue) pending() []internal.ScheduledIntervention {
	var out []internal.ScheduledIntervention
	for _, e := range q.items {
		if e.item.State == internal.StatePending {
			out = append(out, e.item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}
