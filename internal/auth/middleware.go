/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"net/http"
	"path"
	"strings"
)

// EventsPath is the websocket endpoint that may authenticate via query
// parameters.
const EventsPath = "/api/v1/events"

// Middleware accepts either the shared remote key or a session token issued
// with jwtSecret. When the verifier is disabled every request passes with
// anonymous controller claims.
func Middleware(keys *KeyVerifier, jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !keys.Enabled() {
				ctx := WithClaims(r.Context(), &Claims{ClientID: "anonymous", Role: RoleController})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if key := extractKey(r); key != "" {
				if err := keys.Verify(key); err != nil {
					unauthorized(w)
					return
				}
				ctx := WithClaims(r.Context(), &Claims{ClientID: "remote-key", Role: RoleController})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if len(jwtSecret) > 0 {
				if token := extractToken(r); token != "" {
					claims, err := Parse(jwtSecret, token)
					if err == nil && claims != nil {
						ctx := WithClaims(r.Context(), claims)
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
				}
			}

			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

func extractKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderRemoteKey)); key != "" {
		return key
	}
	if isEventsUpgrade(r) {
		return strings.TrimSpace(r.URL.Query().Get("key"))
	}
	return ""
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// Browser websocket clients cannot set headers.
	if isEventsUpgrade(r) {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return ""
}

func isEventsUpgrade(r *http.Request) bool {
	if r == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket") &&
		path.Clean(r.URL.Path) == EventsPath
}
