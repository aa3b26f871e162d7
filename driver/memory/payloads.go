package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/gobeaver/filescan"
)

// Payloads is an in-memory filescan.PayloadStore
type Payloads struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewPayloads creates an empty payload store
func NewPayloads() *Payloads {
	return &Payloads{objects: make(map[string][]byte)}
}

// Put implements filescan.PayloadStore
func (p *Payloads) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[key] = append([]byte(nil), data...)
	return nil
}

// Get implements filescan.PayloadStore
func (p *Payloads) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.objects[key]
	if !ok {
		return nil, filescan.ErrPayloadNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete implements filescan.PayloadStore
func (p *Payloads) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, key)
	return nil
}

// Keys returns how many payloads are parked.
func (p *Payloads) Keys() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.objects)
}

var _ filescan.PayloadStore = (*Payloads)(nil)

// DeletePrefix implements filescan.PayloadSweeper
func (p *Payloads) DeletePrefix(ctx context.Context, prefix string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.objects {
		if strings.HasPrefix(key, prefix+"/") {
			delete(p.objects, key)
		}
	}
	return nil
}

var _ filescan.PayloadSweeper = (*Payloads)(nil)
