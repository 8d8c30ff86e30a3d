package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

// ActorHeader names the header consulted for the acting identity when the
// request carries no bearer token.
const ActorHeader = "X-Actor-ID"

// requestInfo extracts audit provenance from the request: the acting
// identity, the caller's network address, and the client agent string.
func requestInfo(r *http.Request) receiptvault.RequestInfo {
	return receiptvault.RequestInfo{
		ActorID:       actorID(r),
		SourceAddress: sourceAddress(r),
		ClientAgent:   r.UserAgent(),
	}
}

// actorID resolves the acting identity. A verified token subject wins over
// the actor header; an empty result is recorded as anonymous downstream.
func actorID(r *http.Request) string {
	if _, claims, err := jwtauth.FromContext(r.Context()); err == nil && claims != nil {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return sub
		}
	}
	return r.Header.Get(ActorHeader)
}

// sourceAddress returns the originating IP, honoring X-Forwarded-For when a
// proxy sits in front of the service.
func sourceAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
