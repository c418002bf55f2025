package queue

import (
	"container/list"
	"math"
	"sync"

	"github.com/pkg/errors"
)

// PriorityList holds FIFO sub-lists keyed by an integer priority level,
// with O(1) push/pop at a given level and O(n) removal of an arbitrary
// element. It backs the placement engine's pending-high-priority set:
// tasks that could not be placed immediately are pushed here and
// drained, highest level first, as machines and VMs become available.
type PriorityList struct {
	sync.RWMutex
	levels  map[int]*list.List
	highest int
}

// NewPriorityList returns an empty PriorityList.
func NewPriorityList() *PriorityList {
	return &PriorityList{
		levels:  make(map[int]*list.List),
		highest: math.MinInt32,
	}
}

// Push appends an item at the given level.
func (p *PriorityList) Push(level int, item interface{}) {
	p.Lock()
	defer p.Unlock()

	l, ok := p.levels[level]
	if !ok {
		l = list.New()
		p.levels[level] = l
	}
	l.PushBack(item)
	if level > p.highest {
		p.highest = level
	}
}

// Pop removes and returns the oldest item at the given level.
func (p *PriorityList) Pop(level int) (interface{}, error) {
	p.Lock()
	defer p.Unlock()

	l, ok := p.levels[level]
	if !ok || l.Len() == 0 {
		return nil, errors.Errorf("no items at priority level %d", level)
	}
	item := l.Remove(l.Front())
	if l.Len() == 0 {
		delete(p.levels, level)
		p.highest = p.recomputeHighest()
	}
	return item, nil
}

// Remove deletes the first occurrence of value at the given level.
func (p *PriorityList) Remove(level int, value interface{}) error {
	p.Lock()
	defer p.Unlock()

	l, ok := p.levels[level]
	if !ok {
		return errors.Errorf("no items at priority level %d", level)
	}
	for e := l.Front(); e != nil; e = e.Next() {
		if e.Value == value {
			l.Remove(e)
			if l.Len() == 0 {
				delete(p.levels, level)
				p.highest = p.recomputeHighest()
			}
			return nil
		}
	}
	return errors.Errorf("value not found at priority level %d", level)
}

// Items returns a snapshot slice of every item at the given level, in
// FIFO order.
func (p *PriorityList) Items(level int) []interface{} {
	p.RLock()
	defer p.RUnlock()

	l, ok := p.levels[level]
	if !ok {
		return nil
	}
	items := make([]interface{}, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		items = append(items, e.Value)
	}
	return items
}

// Len returns the number of items at the given level.
func (p *PriorityList) Len(level int) int {
	p.RLock()
	defer p.RUnlock()
	if l, ok := p.levels[level]; ok {
		return l.Len()
	}
	return 0
}

// Size returns the total number of items across all levels.
func (p *PriorityList) Size() int {
	p.RLock()
	defer p.RUnlock()
	total := 0
	for _, l := range p.levels {
		total += l.Len()
	}
	return total
}

// HighestLevel returns the highest non-empty priority level, or
// math.MinInt32 if the list is empty.
func (p *PriorityList) HighestLevel() int {
	p.RLock()
	defer p.RUnlock()
	return p.highest
}

func (p *PriorityList) recomputeHighest() int {
	highest := math.MinInt32
	for level := range p.levels {
		if level > highest {
			highest = level
		}
	}
	return highest
}
