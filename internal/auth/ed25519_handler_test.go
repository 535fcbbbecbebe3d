package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/inkwell-app/inkwell/internal/auth/testdata"
	"github.com/inkwell-app/inkwell/internal/config"
)

func TestEd25519ChallengeHandler(t *testing.T) {
	provider, err := NewEd25519AuthProvider(testdata.TestPublicKeyPEM, "Authorization", testdata.TestUserID)
	if err != nil {
		t.Fatalf(failedToCreateProvider, err)
	}
	handler := Ed25519ChallengeHandler(provider)

	t.Run("GET returns the current challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/challenge", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		challenge, err := base64.StdEncoding.DecodeString(body["challenge"])
		if err != nil {
			t.Fatalf("Failed to decode challenge: %v", err)
		}
		if string(challenge) != string(provider.GetChallenge()) {
			t.Error("Expected the served challenge to match the provider's")
		}
	})

	t.Run("POST rotates the challenge", func(t *testing.T) {
		before := string(provider.GetChallenge())

		req := httptest.NewRequest(http.MethodPost, "/auth/challenge", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if string(provider.GetChallenge()) == before {
			t.Error("Expected the challenge to rotate")
		}
	})

	t.Run("Other methods are rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/auth/challenge", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestEd25519VerifyHandler(t *testing.T) {
	provider, err := NewEd25519AuthProvider(testdata.TestPublicKeyPEM, "Authorization", testdata.TestUserID)
	if err != nil {
		t.Fatalf(failedToCreateProvider, err)
	}
	handler := Ed25519VerifyHandler(provider)
	privateKey := testPrivateKey(t)

	t.Run("Valid signature sets the auth cookie", func(t *testing.T) {
		signature := ed25519.Sign(privateKey, provider.GetChallenge())

		req := httptest.NewRequest(http.MethodPost, "/auth/verify", nil)
		req.Header.Set("Authorization", base64.StdEncoding.EncodeToString(signature))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
		}

		var found bool
		for _, cookie := range rec.Result().Cookies() {
			if cookie.Name == config.CookieAuthToken {
				found = true
				if !cookie.HttpOnly {
					t.Error("Expected the auth cookie to be HttpOnly")
				}
			}
		}
		if !found {
			t.Error("Expected an auth cookie to be set")
		}
	})

	t.Run("Missing header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/verify", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, rec.Code)
		}
	})

	t.Run("Bad signature is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/verify", nil)
		req.Header.Set("Authorization", base64.StdEncoding.EncodeToString([]byte("bogus")))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, rec.Code)
		}
	})

	t.Run("GET is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}
