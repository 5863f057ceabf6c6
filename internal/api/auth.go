package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/MrWong99/chatsim/internal/observe"
)

// ErrUnauthenticated is reported when a request carries no usable identity.
var ErrUnauthenticated = errors.New("api: unauthenticated")

// DefaultUserHeader is the identity header set by the fronting auth proxy.
const DefaultUserHeader = "X-User-Id"

// Authenticator resolves the caller of a request. The API never performs
// authentication itself; it only consumes the verdict.
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, ok bool)
}

// AuthenticatorFunc adapts a function to [Authenticator].
type AuthenticatorFunc func(r *http.Request) (string, bool)

// Authenticate implements [Authenticator].
func (f AuthenticatorFunc) Authenticate(r *http.Request) (string, bool) { return f(r) }

// HeaderAuthenticator trusts an identity header written by a reverse proxy
// that has already authenticated the request.
type HeaderAuthenticator struct {
	// Header is the header name. Defaults to [DefaultUserHeader].
	Header string
}

// Authenticate implements [Authenticator].
func (a HeaderAuthenticator) Authenticate(r *http.Request) (string, bool) {
	name := a.Header
	if name == "" {
		name = DefaultUserHeader
	}
	id := strings.TrimSpace(r.Header.Get(name))
	return id, id != ""
}

// TokenAuthenticator maps static bearer tokens to user ids. Meant for
// development setups without an auth proxy.
type TokenAuthenticator struct {
	tokens map[string]string
}

// NewTokenAuthenticator returns an authenticator accepting the given
// token → user id pairs.
func NewTokenAuthenticator(tokens map[string]string) *TokenAuthenticator {
	m := make(map[string]string, len(tokens))
	for tok, user := range tokens {
		if tok != "" && user != "" {
			m[tok] = user
		}
	}
	return &TokenAuthenticator{tokens: m}
}

// Authenticate implements [Authenticator]. The token is read from the
// Authorization header, or from the access_token query parameter for
// clients that cannot set headers (EventSource, browser WebSocket).
func (a *TokenAuthenticator) Authenticate(r *http.Request) (string, bool) {
	tok := bearerToken(r)
	if tok == "" {
		tok = r.URL.Query().Get("access_token")
	}
	if tok == "" {
		return "", false
	}
	for known, user := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(tok)) == 1 {
			return user, true
		}
	}
	return "", false
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// Chain tries each authenticator in order and accepts the first verdict.
func Chain(auths ...Authenticator) Authenticator {
	return AuthenticatorFunc(func(r *http.Request) (string, bool) {
		for _, a := range auths {
			if id, ok := a.Authenticate(r); ok {
				return id, true
			}
		}
		return "", false
	})
}

type userKey struct{}

// WithUserID returns a copy of ctx carrying the authenticated user id. The
// id is also added to everything logged through [observe.Logger].
func WithUserID(ctx context.Context, userID string) context.Context {
	ctx = observe.WithLogAttrs(ctx, "user", userID)
	return context.WithValue(ctx, userKey{}, userID)
}

// UserID returns the user id stored by [WithUserID].
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}
