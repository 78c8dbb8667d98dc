// Package security checks the validity of the TLS certificates used to reach
// each configured source: the leaf certificate of HTTPS endpoints and the
// client certificate of mTLS sources.
//
// Run repeats the checks periodically, logs certificates that are expiring
// (30 days or less) or expired, and reports the remaining days to a Gauge.
package security
