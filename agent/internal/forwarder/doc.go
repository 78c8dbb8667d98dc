// Package forwarder sends metrics to the time-series store using the Graphite
// plaintext protocol: one "name value timestamp\n" line per metric over TCP.
//
// Forward opens one connection per call, writes the whole batch and closes
// the connection, success or failure. Writes are fire-and-forget: nothing is
// read back and nothing is retried. A failed call returns
// *types.TransportError and the metrics of that pass are dropped.
//
// The dialFn and now fields are injectable for testing.
package forwarder
