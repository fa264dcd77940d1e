package telenet

import (
	"net"
	"sync/atomic"
)

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// never returns 0
func nextSeq(addr *uint32) uint32 {
	seq := atomic.AddUint32(addr, 1)
	if atomic.CompareAndSwapUint32(addr, 0, 1) {
		return 1
	}
	return seq
}
