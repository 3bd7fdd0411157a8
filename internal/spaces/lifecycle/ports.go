package lifecycle

import (
	"fmt"
	"net"
)

// allocatePort asks the kernel for a free TCP port and keeps the listener
// open so nothing else can claim it in the meantime. The caller invokes
// release immediately before handing the port to the engine; a collision in
// the remaining window fails the container bind cleanly.
func allocatePort() (port int, release func(), err error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, nil, fmt.Errorf("failed to allocate port: %w", err)
	}

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		l.Close()
		return 0, nil, fmt.Errorf("unexpected listener address type %T", l.Addr())
	}
	return addr.Port, func() { l.Close() }, nil
}
