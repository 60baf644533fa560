package storage

// View is one partition of a Manager seen as a plain key/value store.
// Writes and reads of the user partition go through the cache.
type View struct {
	m *Manager
	p Partition
}

// View returns the key/value view of partition p.
func (m *Manager) View(p Partition) *View {
	return &View{m: m, p: p}
}

// Partition returns the partition the view is bound to.
func (v *View) Partition() Partition { return v.p }

// Write stores data under key.
func (v *View) Write(key string, data []byte) (int, error) {
	return v.m.WriteCached(v.p, key, data)
}

// Get returns the live value of key.
func (v *View) Get(key string) ([]byte, error) {
	return v.m.GetCached(v.p, key)
}

// Delete removes key.
func (v *View) Delete(key string) error {
	return v.m.Delete(v.p, key)
}
