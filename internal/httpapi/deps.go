// Package httpapi is C8, the HTTP surface described in spec §6: a thin
// net/http layer translating requests into assetsvc/scanner calls and
// apierr values into the `{error:{code,message,details}}` envelope.
//
// Grounded on the teacher's buildWebMux (cmd/bd/web_server.go): a single
// *http.ServeMux built from small per-route closures, a shared JSON-response
// helper, and no framework in between.
package httpapi

import (
	"net/http"
)

// Auth resolves the acting owner_id for a request, per spec §6's "an auth
// service supplying owner_id per request" collaborator. The default
// implementation reads a header; a real deployment replaces this with
// whatever session/token scheme fronts the service.
type Auth interface {
	OwnerID(r *http.Request) string
}

// HeaderAuth is the simplest Auth: trusts an upstream-set header verbatim.
// Suitable behind a reverse proxy that has already authenticated the caller.
type HeaderAuth struct {
	HeaderName string // defaults to "X-Owner-Id"
}

func (a HeaderAuth) OwnerID(r *http.Request) string {
	name := a.HeaderName
	if name == "" {
		name = "X-Owner-Id"
	}
	return r.Header.Get(name)
}
