package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
)

type ExtraClaims struct {
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

type AuthUser struct {
	UserId      string      `json:"user_id,omitempty"`
	DisplayName string      `json:"display_name,omitempty"` // Name of the user, not username
	ExtraClaims ExtraClaims `json:"extra_claims,omitempty"`
}

func (i AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", i.UserId),
		slog.Any("roles", i.ExtraClaims.Roles),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "twofactor context value " + k.name
}

const ACCESS_TOKEN_NAME = "access_token"

var AuthUserKey = &contextKey{"AuthUser"}

// DefaultAdminRoles are the roles allowed to act on other users.
var DefaultAdminRoles = []string{"admin", "superadmin"}

func LoadFromMap[T any](m map[string]interface{}, c *T) error {
	data, err := json.Marshal(m)
	if err == nil {
		err = json.Unmarshal(data, c)
	}
	return err
}

// WithAuthUser returns a copy of ctx carrying user.
func WithAuthUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, AuthUserKey, user)
}

// GetAuthUser returns the authenticated user in ctx, or nil.
func GetAuthUser(ctx context.Context) *AuthUser {
	user, _ := ctx.Value(AuthUserKey).(*AuthUser)
	return user
}

// ClaimsToAuthUser builds an AuthUser from verified JWT claims. The user id is
// read from extra_claims.user_id, then user_id, then sub.
func ClaimsToAuthUser(claims map[string]interface{}) (*AuthUser, error) {
	authUser := new(AuthUser)

	if err := LoadFromMap(claims, authUser); err != nil {
		return nil, err
	}

	if extraClaimsRaw, exists := claims["extra_claims"]; exists {
		extraClaims, ok := extraClaimsRaw.(map[string]interface{})
		if ok {
			if err := LoadFromMap(extraClaims, &authUser.ExtraClaims); err != nil {
				return nil, err
			}
			if id, ok := extraClaims["user_id"].(string); ok && id != "" {
				authUser.UserId = id
			}
			if name, ok := extraClaims["display_name"].(string); ok && name != "" {
				authUser.DisplayName = name
			}
		}
	}

	if authUser.UserId == "" {
		if sub, ok := claims["sub"].(string); ok {
			authUser.UserId = sub
		}
	}
	return authUser, nil
}

func AuthUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			http.Error(w, "missing or invalid JWT", http.StatusUnauthorized)
			return
		}
		if claims == nil {
			http.Error(w, "missing JWT claims", http.StatusUnauthorized)
			return
		}

		authUser, err := ClaimsToAuthUser(claims)
		if err != nil {
			slog.Error("failed to parse token claims", "error", err)
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}
		if authUser.UserId == "" {
			http.Error(w, "missing user ID in token", http.StatusUnauthorized)
			return
		}

		slog.Debug("authenticated user", "userId", authUser.UserId, "roles", authUser.ExtraClaims.Roles)
		next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), authUser)))
	})
}

// Verifier looks for a token in the Authorization header, then the access_token cookie.
func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Verify(ja, jwtauth.TokenFromHeader, TokenFromCookie)(next)
	}
}

func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// IsAdmin checks if the user has the "admin" or "superadmin" role
func IsAdmin(user *AuthUser) bool {
	return IsAdminWithRoles(user, DefaultAdminRoles)
}

// IsAdminWithRoles checks if the user has any of the specified admin roles
func IsAdminWithRoles(user *AuthUser, adminRoles []string) bool {
	if user == nil || user.ExtraClaims.Roles == nil {
		return false
	}

	for _, userRole := range user.ExtraClaims.Roles {
		for _, adminRole := range adminRoles {
			if userRole == adminRole {
				return true
			}
		}
	}

	return false
}
