package eeprom

// MemoryStore is an in-memory Store (not persisted). It backs tests and
// headless runs without a database.
type MemoryStore struct {
	staged    [Size]byte
	committed [Size]byte
	// FailCommit forces Commit to fail; used to exercise the
	// commit-failure path in tests.
	FailCommit error
}

// NewMemoryStore creates a zeroed in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Read copies len(dst) committed bytes starting at offset.
func (m *MemoryStore) Read(offset int, dst []byte) error {
	if err := checkRange(offset, len(dst)); err != nil {
		return err
	}
	copy(dst, m.committed[offset:])
	return nil
}

// Write stages len(src) bytes at offset.
func (m *MemoryStore) Write(offset int, src []byte) error {
	if err := checkRange(offset, len(src)); err != nil {
		return err
	}
	copy(m.staged[offset:], src)
	return nil
}

// Commit publishes staged bytes.
func (m *MemoryStore) Commit() error {
	if m.FailCommit != nil {
		return m.FailCommit
	}
	m.committed = m.staged
	return nil
}
