package archive

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// MemoryArchive keeps the most recent outcomes in memory.
type MemoryArchive struct {
	mu       sync.Mutex
	capacity int
	records  []Record
}

var _ Archive = &MemoryArchive{}

func NewMemoryArchive(capacity int) *MemoryArchive {
	if capacity <= 0 {
		capacity = maxRecentLimit
	}
	return &MemoryArchive{capacity: capacity}
}

func (m *MemoryArchive) Close() error { return nil }

func (m *MemoryArchive) Record(_ context.Context, rec Record) error {
	if m == nil {
		return errors.New("memory archive: nil archive")
	}
	if strings.TrimSpace(rec.RequestID) == "" {
		return errors.New("memory archive: request id is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].RequestID == rec.RequestID {
			m.records = append(m.records[:i], m.records[i+1:]...)
			break
		}
	}
	m.records = append(m.records, rec)
	if over := len(m.records) - m.capacity; over > 0 {
		m.records = append([]Record(nil), m.records[over:]...)
	}
	return nil
}

func (m *MemoryArchive) Recent(_ context.Context, limit int) ([]Record, error) {
	if m == nil {
		return nil, errors.New("memory archive: nil archive")
	}
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}
