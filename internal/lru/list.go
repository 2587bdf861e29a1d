// Package lru provides a doubly-linked recency list.
//
// The list is not thread-safe; callers must handle synchronization. The
// frame buffer pool uses it to find the least recently returned idle buffer
// when the idle byte budget is exceeded.
package lru

// Node is an element of a List.
// The node stores its key so eviction can find the owning map entry.
type Node[K comparable] struct {
	key    K
	prev   *Node[K]
	next   *Node[K]
	linked bool
}

// Key returns the key stored in the node.
func (n *Node[K]) Key() K {
	return n.key
}

// List is a doubly-linked list ordered by recency.
// The head is the most recently used, the tail the least recently used.
type List[K comparable] struct {
	head *Node[K]
	tail *Node[K]
	len  int
}

// New creates an empty list.
func New[K comparable]() *List[K] {
	return &List[K]{}
}

// Len returns the number of nodes in the list.
func (l *List[K]) Len() int {
	return l.len
}

// PushFront adds a new node at the front (most recently used).
// Returns the created node for later removal.
func (l *List[K]) PushFront(key K) *Node[K] {
	node := &Node[K]{key: key}
	l.linkFront(node)
	return node
}

// MoveToFront marks an existing node as most recently used.
func (l *List[K]) MoveToFront(node *Node[K]) {
	if node == nil || !node.linked || node == l.head {
		return
	}
	l.unlink(node)
	l.linkFront(node)
}

// Remove removes a node from the list.
// Removing a node that is not linked is a no-op.
func (l *List[K]) Remove(node *Node[K]) {
	if node == nil || !node.linked {
		return
	}
	l.unlink(node)
}

// RemoveOldest removes and returns the key of the least recently used node.
// Returns zero value and false if list is empty.
func (l *List[K]) RemoveOldest() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}

	node := l.tail
	l.unlink(node)
	return node.key, true
}

// Oldest returns the key of the least recently used node without removing it.
// Returns zero value and false if list is empty.
func (l *List[K]) Oldest() (K, bool) {
	if l.tail == nil {
		var zero K
		return zero, false
	}
	return l.tail.key, true
}

// Clear removes all nodes from the list.
func (l *List[K]) Clear() {
	for n := l.head; n != nil; {
		next := n.next
		n.prev, n.next, n.linked = nil, nil, false
		n = next
	}
	l.head = nil
	l.tail = nil
	l.len = 0
}

func (l *List[K]) linkFront(node *Node[K]) {
	node.prev = nil
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
	node.linked = true
	l.len++
}

// unlink removes a linked node and clears its pointers.
func (l *List[K]) unlink(node *Node[K]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}

	node.prev = nil
	node.next = nil
	node.linked = false
	l.len--
}
