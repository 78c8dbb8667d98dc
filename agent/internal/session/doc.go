// Package session manages the bearer token of a session-authenticated data
// source.
//
// A Manager starts Unauthenticated. Token(ctx) performs the token exchange
// (HTTP basic credentials plus a JSON {applicationName, clientIdentifier}
// body, POSTed to a fixed path) whenever no valid token is held, and records
// the expiry from the optional expires_in field. A token without expires_in
// stays valid until Invalidate is called after the remote side rejects it.
//
// Failures of the exchange are reported as *AuthenticationError and are not
// retried here; the next collection pass tries again.
package session
