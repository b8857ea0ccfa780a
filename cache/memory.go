package cache

import (
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-memory cache provider backed by one go-cache store
// per partition. Entries do not expire on their own; eviction is driven
// entirely by the lifecycle manager and explicit commands.
type MemoryCache struct {
	mutex      *sync.RWMutex
	partitions map[string]*gocache.Cache
}

func NewMemoryCache() MemoryCache {
	return MemoryCache{
		mutex:      &sync.RWMutex{},
		partitions: make(map[string]*gocache.Cache),
	}
}

func (m MemoryCache) Get(partition, key string) (Entry, bool, error) {
	m.mutex.RLock()
	store, ok := m.partitions[partition]
	m.mutex.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	value, found := store.Get(key)
	if !found {
		return Entry{}, false, nil
	}
	return value.(Entry), true, nil
}

func (m MemoryCache) Put(partition string, e Entry) error {
	m.store(partition).Set(e.Key, e, gocache.NoExpiration)
	return nil
}

func (m MemoryCache) Delete(partition, key string) error {
	m.mutex.RLock()
	store, ok := m.partitions[partition]
	m.mutex.RUnlock()
	if ok {
		store.Delete(key)
	}
	return nil
}

func (m MemoryCache) Clear(partition string) error {
	m.mutex.RLock()
	store, ok := m.partitions[partition]
	m.mutex.RUnlock()
	if ok {
		store.Flush()
	}
	return nil
}

func (m MemoryCache) Drop(partition string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.partitions, partition)
	return nil
}

func (m MemoryCache) Partitions() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.partitions))
	for name := range m.partitions {
		names = append(names, name)
	}
	return names, nil
}

func (m MemoryCache) Keys(partition string, cb func(key string, status int)) {
	m.mutex.RLock()
	store, ok := m.partitions[partition]
	m.mutex.RUnlock()
	if !ok {
		return
	}
	for key, item := range store.Items() {
		cb(key, item.Object.(Entry).Status)
	}
}

func (m MemoryCache) Size() (int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var size int64
	for _, store := range m.partitions {
		for _, item := range store.Items() {
			size += item.Object.(Entry).BodySize
		}
	}
	return size, nil
}

// store returns the partition's backing store, creating it if needed.
func (m MemoryCache) store(partition string) *gocache.Cache {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if store, ok := m.partitions[partition]; ok {
		return store
	}
	store := gocache.New(gocache.NoExpiration, 0)
	m.partitions[partition] = store
	return store
}
