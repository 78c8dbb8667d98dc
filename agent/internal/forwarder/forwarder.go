package forwarder

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/telepoll/telepoll/pkg/types"
)

// DefaultTimeout bounds the dial and the write of one forwarding call.
const DefaultTimeout = 5 * time.Second

// Forwarder writes metrics to a plaintext line-protocol sink.
// It holds no connection between calls and is safe for concurrent use.
type Forwarder struct {
	addr    string
	timeout time.Duration
	dialFn  dialFunc         // injectable for tests
	now     func() time.Time // injectable for deterministic timestamps
}

// dialFunc opens the sink connection. Abstracted so tests can inject failures.
type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// New creates a Forwarder for the sink at addr (host:port).
// A non-positive timeout selects DefaultTimeout.
func New(addr string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &net.Dialer{Timeout: timeout}
	return &Forwarder{
		addr:    addr,
		timeout: timeout,
		dialFn:  d.DialContext,
		now:     time.Now,
	}
}

// Forward serializes metrics as "name value timestamp\n" lines and writes
// them over a single new TCP connection, which is closed before returning.
// Metrics without a timestamp are stamped with the current time.
//
// An empty slice performs no network I/O. Dial and write failures are
// returned as *types.TransportError. Nothing is read back from the sink.
func (f *Forwarder) Forward(ctx context.Context, metrics []types.Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	payload := f.encode(metrics)

	dialCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	conn, err := f.dialFn(dialCtx, "tcp", f.addr)
	if err != nil {
		return &types.TransportError{Op: "dial", Addr: f.addr, Err: err}
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(f.timeout)); err != nil {
		return &types.TransportError{Op: "write", Addr: f.addr, Err: err}
	}
	if _, err := conn.Write(payload); err != nil {
		return &types.TransportError{Op: "write", Addr: f.addr, Err: err}
	}

	slog.Info("forwarder: metrics sent", "addr", f.addr, "count", len(metrics), "bytes", len(payload))
	return nil
}

// encode renders metrics in line-protocol form, one line per metric.
func (f *Forwarder) encode(metrics []types.Metric) []byte {
	now := f.now().Unix()
	var buf bytes.Buffer
	for _, m := range metrics {
		ts := now
		if m.HasTimestamp() {
			ts = m.Timestamp.Unix()
		}
		slog.Debug("forwarder: metric", "name", m.Name, "value", m.Value)

		buf.WriteString(m.Name)
		buf.WriteByte(' ')
		buf.WriteString(m.FormatValue())
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatInt(ts, 10))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
