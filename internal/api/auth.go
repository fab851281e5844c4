package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Authenticator guards the write routes with HTTP basic auth against one admin account. Only the
// bcrypt hash of the password is kept in memory.
type Authenticator struct {
	user string
	hash []byte
}

// NewAuthenticator hashes password for user.
func NewAuthenticator(user, password string) (*Authenticator, error) {
	if user == "" || password == "" {
		return nil, errors.New("admin user and password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	return &Authenticator{user: user, hash: hash}, nil
}

// Check reports whether the credentials match the admin account.
func (a *Authenticator) Check(user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	// The hash is compared even for a wrong user name.
	passOK := bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	return userOK && passOK
}

// Require wraps next so that it only runs for authenticated requests. A nil Authenticator lets
// every request through.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || !a.Check(user, password) {
			log.Warn().Str("remote_addr", r.RemoteAddr).Str("user", user).Str("path", r.URL.Path).Msg("Authentication failed")
			w.Header().Set("WWW-Authenticate", `Basic realm="pride-store"`)
			SendJSONResponse(w, false, "Authentication failed: Invalid username or password.", nil, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
