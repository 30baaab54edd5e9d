package model

import (
	"time"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
)

// Memory is a durable memory record grouped by category. Content is a
// caller-defined payload, commonly a user/bot turn pair.
type Memory struct {
	ID        types.MemoryID
	Category  types.Category
	Content   Value
	Metadata  map[string]string
	CreatedAt time.Time
}

// Clone returns a deep copy of the memory record
func (m *Memory) Clone() *Memory {
	copied := &Memory{
		ID:        m.ID,
		Category:  m.Category,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if m.Metadata != nil {
		copied.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			copied.Metadata[k] = v
		}
	}
	return copied
}
