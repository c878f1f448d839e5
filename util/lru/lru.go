package lru

import (
	"container/list"
	"sync"
)

// LRU is a fixed-capacity cache that evicts the least recently used entry.
// It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	capacity int
	list     *list.List
	elements map[K]*list.Element
	m        sync.Mutex
}

type lruElement[K comparable, V any] struct {
	key   K
	value V
}

func New[K comparable, V any](cap int) *LRU[K, V] {
	if cap < 1 {
		cap = 1
	}
	return &LRU[K, V]{
		capacity: cap,
		list:     list.New(),
		elements: make(map[K]*list.Element, cap),
	}
}

func (l *LRU[K, V]) Get(key K) (value V, exist bool) {
	l.m.Lock()
	defer l.m.Unlock()
	if element, ok := l.elements[key]; ok {
		l.list.MoveToFront(element)
		return element.Value.(*lruElement[K, V]).value, true
	}
	return value, false
}

func (l *LRU[K, V]) Put(key K, value V) {
	l.m.Lock()
	defer l.m.Unlock()
	if element, ok := l.elements[key]; ok {
		element.Value.(*lruElement[K, V]).value = value
		l.list.MoveToFront(element)
		return
	}
	l.elements[key] = l.list.PushFront(&lruElement[K, V]{key, value})
	if l.list.Len() > l.capacity {
		toBeRemove := l.list.Back()
		l.list.Remove(toBeRemove)
		delete(l.elements, toBeRemove.Value.(*lruElement[K, V]).key)
	}
}

func (l *LRU[K, V]) Len() int {
	l.m.Lock()
	defer l.m.Unlock()
	return l.list.Len()
}

func (l *LRU[K, V]) IsFull() bool {
	return l.Len() >= l.capacity
}
