package api

import "net/http"

// Identity resolves the requesting user from an HTTP request. The quota
// system only needs a stable user ID, so the capability is a single method;
// deployments plug in whatever auth they have.
type Identity interface {
	UserID(r *http.Request) string
}

// userIDHeader carries the user identity in the default scheme.
const userIDHeader = "X-User-ID"

// HeaderIdentity reads the user ID from the X-User-ID header.
// Suitable behind a trusted proxy that authenticates upstream; do not
// expose it directly to untrusted clients.
type HeaderIdentity struct{}

// UserID returns the header value, empty when absent.
func (HeaderIdentity) UserID(r *http.Request) string {
	return r.Header.Get(userIDHeader)
}
