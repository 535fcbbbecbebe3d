package auth

import (
	"net/http"
)

// RegisterEd25519AuthRoutes registers the challenge/verify endpoints used
// by the Ed25519 login flow.
func RegisterEd25519AuthRoutes(mux *http.ServeMux, provider *Ed25519AuthProvider) {
	mux.HandleFunc("/auth/challenge", Ed25519ChallengeHandler(provider))
	mux.HandleFunc("/auth/verify", Ed25519VerifyHandler(provider))
}
