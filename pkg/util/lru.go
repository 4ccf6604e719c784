package util

import (
	"container/list"
	"fmt"
	"sync"
)

// LRUCache 是一个支持泛型、线程安全的LRU缓存。
// 构建过程用它在内存中追踪"已见过"的节点 URI，容量可控，
// 超出容量时最久未使用的条目被淘汰。
type LRUCache[K comparable, V any] struct {
	capacity int
	ll       *list.List
	cache    map[K]*list.Element
	lock     sync.RWMutex // 读写锁保证并发安全
}

// entry 结构体用于存储链表节点中的实际数据。
type entry[K comparable, V any] struct {
	key   K
	value V
}

// New 创建一个指定容量的LRU缓存实例。
func New[K comparable, V any](capacity int) (*LRUCache[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("容量必须大于 0")
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		ll:       list.New(),
		cache:    make(map[K]*list.Element),
	}, nil
}

// Get 方法根据键获取一个值，并把该条目移到最近使用端。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	element, ok := c.cache[key]
	if !ok {
		var zeroV V
		return zeroV, false
	}
	c.ll.MoveToFront(element)
	return element.Value.(*entry[K, V]).value, true
}

// Put 方法写入一个键值对。容量满时淘汰最久未使用的条目。
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if element, ok := c.cache[key]; ok {
		c.ll.MoveToFront(element)
		element.Value.(*entry[K, V]).value = value
		return
	}

	element := c.ll.PushFront(&entry[K, V]{key: key, value: value})
	c.cache[key] = element

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.cache, oldest.Value.(*entry[K, V]).key)
		}
	}
}

// Len 返回当前缓存的条目数量。
func (c *LRUCache[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.ll.Len()
}

// Purge 清空缓存。
func (c *LRUCache[K, V]) Purge() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.ll.Init()
	c.cache = make(map[K]*list.Element)
}
