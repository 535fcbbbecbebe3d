// Package auth provides pluggable authentication for the writing API:
// Clerk sessions for the hosted deployment and Ed25519 challenge auth for
// single-user installs.
package auth

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/inkwell-app/inkwell/internal/model"
)

var authLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	authLogger = l
}

type AuthProvider interface {
	WithHeaderAuthorization() func(http.Handler) http.Handler

	GetUserIDFromSession(r *http.Request) (model.UserID, error)

	EnforceUserAndGetID(w http.ResponseWriter, r *http.Request) (model.UserID, error)

	HandleWebhookUser(w http.ResponseWriter, r *http.Request)
}
