// Package httpclient issues authenticated requests against a data source.
//
// NewHTTPClient builds the *http.Client for a config.Source: TLS settings,
// mTLS client certificates (separate or combined PEM) and HTTP basic
// credentials injected by a RoundTripper.
//
// Client.Do attaches the session token from a TokenSource and, when the
// response is 401, invalidates the session, obtains a fresh token and retries
// the request exactly once. A second 401, or any other non-2xx status, is
// returned as *HTTPError with a reason taken from the JSON error body (or the
// raw body). Network failures are returned as *types.TransportError. This
// single retry is the only automatic retry in the agent.
package httpclient
