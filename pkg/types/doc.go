// Package types defines Go types shared by the agent packages.
// These are the canonical in-memory representations of collected metrics,
// separate from the line-protocol wire format written by the forwarder.
package types
