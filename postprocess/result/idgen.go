package result

import "sync"

// IDGenerator hands out increasing detection IDs
type IDGenerator struct {
	id int64
	sync.Mutex
}

// NewIDGenerator returns a generator starting at 1
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// GetNext returns the next ID
func (g *IDGenerator) GetNext() int64 {
	g.Lock()
	defer g.Unlock()
	g.id++
	return g.id
}

// Reset restarts IDs from 1
func (g *IDGenerator) Reset() {
	g.Lock()
	defer g.Unlock()
	g.id = 0
}
