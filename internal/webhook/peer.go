package webhook

import (
	"context"
	"net/http"
)

type peerAddrKey struct{}

// keepPeerAddr records the socket peer before middleware.RealIP replaces
// RemoteAddr with a value taken from client-supplied headers.
func keepPeerAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// peerAddr returns the address of the connected socket. Use it wherever the
// address must not be forgeable; r.RemoteAddr may hold X-Forwarded-For.
func peerAddr(r *http.Request) string {
	if addr, ok := r.Context().Value(peerAddrKey{}).(string); ok {
		return addr
	}
	return r.RemoteAddr
}
