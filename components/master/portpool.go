package master

import (
	"fmt"

	"github.com/petar/GoLLRB/llrb"
)

// PortPool is the fixed set of ports handed to game servers, lowest free first
type PortPool struct {
	free      *llrb.LLRB
	allocated map[int]bool
}

// NewPortPool creates a pool with every port free
func NewPortPool(ports []int) *PortPool {
	pp := &PortPool{
		free:      llrb.New(),
		allocated: make(map[int]bool, len(ports)),
	}
	for _, port := range ports {
		if _, ok := pp.allocated[port]; ok {
			continue
		}
		pp.allocated[port] = false
		pp.free.ReplaceOrInsert(llrb.Int(port))
	}
	return pp
}

func (pp *PortPool) String() string {
	return fmt.Sprintf("PortPool<%d/%d free>", pp.free.Len(), len(pp.allocated))
}

// Allocate takes the lowest free port
func (pp *PortPool) Allocate() (int, bool) {
	item := pp.free.DeleteMin()
	if item == nil {
		return 0, false
	}
	port := int(item.(llrb.Int))
	pp.allocated[port] = true
	return port, true
}

// Release returns an allocated port to the pool. Unknown or free ports are ignored.
func (pp *PortPool) Release(port int) bool {
	if allocated, ok := pp.allocated[port]; !ok || !allocated {
		return false
	}
	pp.allocated[port] = false
	pp.free.ReplaceOrInsert(llrb.Int(port))
	return true
}

// IsFree reports whether port is in the pool and free
func (pp *PortPool) IsFree(port int) bool {
	return pp.free.Has(llrb.Int(port))
}

// NumFree returns the number of free ports
func (pp *PortPool) NumFree() int {
	return pp.free.Len()
}

// Size returns the number of ports in the pool
func (pp *PortPool) Size() int {
	return len(pp.allocated)
}
