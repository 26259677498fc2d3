package chat

import "github.com/codingarctic/loreshifter-runtime/internal/store"

// node is one link in the in-memory message index. The two sentinel nodes
// (head/tail) carry message == nil and are never returned to callers.
type node struct {
	message    *store.Message
	prev, next *node
}

// index is the doubly-linked message list described in spec.md §4.2: dummy
// head/tail sentinels plus an id→node hashmap for O(1) lookup/edit/delete.
type index struct {
	head, tail *node
	byID       map[int64]*node
}

func newIndex() *index {
	head := &node{}
	tail := &node{}
	head.next = tail
	tail.prev = head
	return &index{head: head, tail: tail, byID: make(map[int64]*node)}
}

// loadAll replaces the index contents with messages, which must already be
// ordered ascending by id (the load order create_or_load uses).
func (x *index) loadAll(messages []*store.Message) {
	x.head.next = x.tail
	x.tail.prev = x.head
	x.byID = make(map[int64]*node, len(messages))
	for _, m := range messages {
		x.append(m)
	}
}

func (x *index) append(m *store.Message) *node {
	n := &node{message: m}
	last := x.tail.prev
	last.next = n
	n.prev = last
	n.next = x.tail
	x.tail.prev = n
	x.byID[m.ID] = n
	return n
}

func (x *index) get(id int64) (*node, bool) {
	n, ok := x.byID[id]
	return n, ok
}

func (x *index) remove(id int64) *node {
	n, ok := x.byID[id]
	if !ok {
		return nil
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	delete(x.byID, id)
	return n
}

// walkForward starts at the node strictly after afterID (or the first real
// node when afterID is nil) and collects up to limit nodes moving toward
// the tail.
func (x *index) walkForward(afterID *int64, limit int) ([]*node, bool) {
	var start *node
	if afterID == nil {
		start = x.head.next
	} else {
		n, ok := x.get(*afterID)
		if !ok {
			return nil, false
		}
		start = n.next
	}

	var out []*node
	for n := start; n != x.tail && len(out) < limit; n = n.next {
		out = append(out, n)
	}
	return out, true
}

// walkBackward starts at beforeID inclusive (or the last real node when
// beforeID is nil) and collects up to limit nodes moving toward the head,
// returning them in ascending (chronological) order.
func (x *index) walkBackward(beforeID *int64, limit int) ([]*node, bool) {
	var start *node
	if beforeID == nil {
		start = x.tail.prev
	} else {
		n, ok := x.get(*beforeID)
		if !ok {
			return nil, false
		}
		start = n
	}

	var out []*node
	for n := start; n != x.head && len(out) < limit; n = n.prev {
		out = append(out, n)
	}
	reverseNodes(out)
	return out, true
}

func reverseNodes(nodes []*node) {
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
}

// boundaryIDs reports the ids of the real nodes just outside window on
// either side, or nil when the window touches a sentinel.
func boundaryIDs(window []*node) (previousID, nextID *int64) {
	if len(window) == 0 {
		return nil, nil
	}
	first, last := window[0], window[len(window)-1]
	if first.prev.message != nil {
		id := first.prev.message.ID
		previousID = &id
	}
	if last.next.message != nil {
		id := last.next.message.ID
		nextID = &id
	}
	return previousID, nextID
}
