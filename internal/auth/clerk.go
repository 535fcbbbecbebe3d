package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkhttp "github.com/clerk/clerk-sdk-go/v2/http"
	clerkuser "github.com/clerk/clerk-sdk-go/v2/user"

	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/model"
)

// ClerkAuthProvider implements AuthProvider against Clerk-hosted sessions.
// User lifecycle webhooks keep the local users table in sync.
type ClerkAuthProvider struct {
	db db.DB

	cookieExtractor clerkhttp.AuthorizationOption
}

func NewClerkAuthProvider(clerkKey string, db db.DB) *ClerkAuthProvider {
	clerk.SetKey(clerkKey)

	return &ClerkAuthProvider{
		db: db,

		cookieExtractor: clerkhttp.AuthorizationJWTExtractor(func(r *http.Request) string {
			cookie, err := r.Cookie("__session")
			if err != nil || cookie == nil {
				authLogger.Debug().Err(err).Msg("Authorization cookie not found")
				return ""
			}
			return cookie.Value
		}),
	}
}

func (c *ClerkAuthProvider) WithHeaderAuthorization() func(http.Handler) http.Handler {
	return clerkhttp.WithHeaderAuthorization(c.cookieExtractor)
}

func (c *ClerkAuthProvider) GetUserIDFromSession(r *http.Request) (model.UserID, error) {
	claims, ok := clerk.SessionClaimsFromContext(r.Context())
	if !ok {
		return "", errors.New("failed to get session claims from context")
	}

	usr, err := clerkuser.Get(r.Context(), claims.Subject)
	if err != nil {
		return "", err
	}

	return model.UserID(usr.ID), nil
}

func (c *ClerkAuthProvider) HandleWebhookUser(w http.ResponseWriter, r *http.Request) {
	authLogger.Info().Msg("User webhook received")

	type EventPayload struct {
		Data struct {
			clerk.User
		} `json:"data"`

		Type string `json:"type"`
	}

	var usr clerk.User
	var payload EventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		authLogger.Error().Err(err).Msg("Error decoding event payload")
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	switch payload.Type {
	case "user.created":
		usr = payload.Data.User

		var username string
		if usr.Username != nil {
			username = *usr.Username
		} else if len(usr.ExternalAccounts) > 0 && usr.ExternalAccounts[0].Username != nil {
			username = *usr.ExternalAccounts[0].Username
		}
		if username == "" {
			authLogger.Warn().Str("user_id", usr.ID).Msg("No username found for user")
			http.Error(w, "No username found", http.StatusBadRequest)
			return
		}

		var email string
		if len(usr.EmailAddresses) > 0 {
			email = usr.EmailAddresses[0].EmailAddress
		}

		_, err := c.db.Exec("INSERT INTO users (id, username, email) VALUES (?, ?, ?)", usr.ID, username, email)
		if err != nil {
			authLogger.Error().Err(err).Msg("Error inserting user")
			http.Error(w, "Error saving user", http.StatusInternalServerError)
			return
		}

		authLogger.Info().Str("user_id", usr.ID).Msg("User created")

		w.WriteHeader(http.StatusCreated)
	case "user.updated":
		authLogger.Info().Msg("User updated webhook received")
		w.WriteHeader(http.StatusNoContent)

	case "user.deleted":
		usr = payload.Data.User

		_, err := c.db.Exec("DELETE FROM users WHERE id = ?", usr.ID)
		if err != nil {
			authLogger.Error().Err(err).Msg("Error deleting user")
			http.Error(w, "Error deleting user", http.StatusInternalServerError)
			return
		}

		authLogger.Info().Str("user_id", usr.ID).Msg("User deleted")

		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Invalid event type", http.StatusBadRequest)
		return
	}
}

func (c *ClerkAuthProvider) EnforceUserAndGetID(w http.ResponseWriter, r *http.Request) (model.UserID, error) {
	userID, err := c.GetUserIDFromSession(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", err
	}
	return userID, nil
}
