package cmap

// Range iterates over all key-value pairs.
//
// The callback returns false to stop iteration.
// Locks are taken shard by shard, so the view is consistent per key only.
// fn must not call back into the map.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Compute atomically reads, transforms and writes back the value for key.
//
// fn receives the current value and whether it exists. It returns the new
// value and keep; keep=false deletes the key. fn runs under the shard write
// lock, so it is mutually exclusive with every other operation on the key.
// If fn returns an error the map is left unchanged.
func (m *Map[V]) Compute(key string, fn func(current V, exists bool) (V, bool, error)) (V, error) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.items[key]
	next, keep, err := fn(current, exists)
	if err != nil {
		return current, err
	}
	if keep {
		s.items[key] = next
	} else if exists {
		delete(s.items, key)
	}
	return next, nil
}

// SetIfAbsent sets the value only if the key does not exist.
// Returns true if the value was set.
func (m *Map[V]) SetIfAbsent(key string, value V) bool {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = value
	return true
}

// Pop removes a key and returns its value.
func (m *Map[V]) Pop(key string) (V, bool) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return v, ok
}

// DeleteIf removes key only if its current value satisfies pred.
// Returns true if the key was removed.
func (m *Map[V]) DeleteIf(key string, pred func(value V) bool) bool {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.items[key]
	if !ok || !pred(v) {
		return false
	}
	delete(s.items, key)
	return true
}

// DeleteWhere removes every entry matching pred and returns how many were
// removed. Each shard is locked for writing while it is scanned.
func (m *Map[V]) DeleteWhere(pred func(key string, value V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if pred(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
