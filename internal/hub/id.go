package hub

import (
	"strconv"
	"sync/atomic"
)

// ConnID identifies one live connection. Values carry no ordering meaning
// beyond being unique for the life of the process.
type ConnID uint64

func (id ConnID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// IDGenerator hands out connection ids from a monotonic counter, so ids are
// never reused within a process.
type IDGenerator struct {
	next atomic.Uint64
}

// Next returns a fresh id. The first id is 1.
func (g *IDGenerator) Next() ConnID {
	return ConnID(g.next.Add(1))
}
