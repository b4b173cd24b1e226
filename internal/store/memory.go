package store

import (
	"context"
	"sync"
)

// MemoryLog keeps delivery records in process. The default driver; state is
// lost on restart, which matches the in-process webhook registry it audits.
type MemoryLog struct {
	mu   sync.RWMutex
	recs []DeliveryRecord
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Append(_ context.Context, rec DeliveryRecord) error {
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	return nil
}

// Recent returns up to limit records, newest first.
func (m *MemoryLog) Recent(_ context.Context, limit int) ([]DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.recs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]DeliveryRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.recs[i])
	}
	return out, nil
}

func (m *MemoryLog) Close() {}
