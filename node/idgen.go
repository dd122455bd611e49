package node

import "sync/atomic"

// IDGenerator hands out strictly increasing 64-bit node ids, unique per
// generator. The zero value is ready to use. The package holds no shared
// instance: each owner (a store, a test) constructs its own.
type IDGenerator struct {
	counter atomic.Int64
}

// NewIDGenerator returns an IDGenerator whose first Next() call returns 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next unused id.
func (g *IDGenerator) Next() int64 {
	return g.counter.Add(1)
}
