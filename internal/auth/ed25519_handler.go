package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/inkwell-app/inkwell/internal/config"
)

// Ed25519ChallengeHandler creates an HTTP handler that serves the current challenge
func Ed25519ChallengeHandler(provider *Ed25519AuthProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := zerolog.Ctx(r.Context())
		switch r.Method {
		case http.MethodGet:
			// Return the current challenge for signing
			challenge := provider.GetChallenge()
			response := map[string]string{
				"challenge": base64.StdEncoding.EncodeToString(challenge),
			}

			w.Header().Set(config.HCType, config.CTypeJSON)
			json.NewEncoder(w).Encode(response)

		case http.MethodPost:
			// Generate a new challenge
			if err := provider.RefreshChallenge(); err != nil {
				l.Error().Err(err).Msg("Failed to refresh challenge")
				http.Error(w, config.ErrRefreshChallengeFmt, http.StatusInternalServerError)
				return
			}

			challenge := provider.GetChallenge()
			response := map[string]string{
				"challenge": base64.StdEncoding.EncodeToString(challenge),
			}

			w.Header().Set(config.HCType, config.CTypeJSON)
			json.NewEncoder(w).Encode(response)

		default:
			http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		}
	}
}

// Ed25519VerifyHandler creates an HTTP handler that verifies the signature
// and sets the session cookie.
func Ed25519VerifyHandler(provider *Ed25519AuthProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
			return
		}

		// Get authorization header
		authHeader := r.Header.Get(provider.headerName)
		if authHeader == "" {
			http.Error(w, config.ErrAuthHeaderRequired, http.StatusUnauthorized)
			return
		}

		signature, err := base64.StdEncoding.DecodeString(strings.TrimSpace(authHeader))
		if err != nil {
			authLogger.Error().Err(err).Msg("Failed to decode signature")
			http.Error(w, config.ErrInvalidSignatureFormat, http.StatusUnauthorized)
			return
		}

		// Verify the signature against the challenge
		if !ed25519.Verify(provider.publicKey, provider.challenge, signature) {
			authLogger.Error().
				Str("signature", string(signature)).
				Str("challenge", string(provider.challenge)).
				Msg("Signature verification failed")
			http.Error(w, config.ErrInvalidSignature, http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     config.CookieAuthToken,
			Value:    base64.StdEncoding.EncodeToString(signature),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
			Secure:   r.TLS != nil,
			MaxAge:   3600 * 24, // 24 hours
		})

		w.WriteHeader(http.StatusOK)
	}
}
