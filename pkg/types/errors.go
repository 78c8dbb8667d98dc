package types

import "fmt"

// TransportError reports a network-level failure: the remote side could not
// be reached, or the connection broke before a complete response (or write)
// was obtained. It is used for both data-source fetches and sink writes.
type TransportError struct {
	// Op is the operation that failed, e.g. "dial", "write", "GET".
	Op string
	// Addr is the remote address or URL.
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
