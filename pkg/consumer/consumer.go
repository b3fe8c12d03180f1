package consumer

import (
	"errors"
	"time"
)

const (
	ClientTypeConfidential     = "confidential"
	GrantTypeAuthorizationCode = "authorization_code"
	ResponseTypeCode           = "code"
)

var (
	ErrConsumerNotFound          = errors.New("consumer not found")
	ErrConsumerExists            = errors.New("consumer already exists")
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")
)

// Consumer is a registered OAuth2 client allowed to request delegated access.
type Consumer struct {
	ID           string    `json:"id"`
	Description  *string   `json:"description"`
	Secret       string    `json:"secret,omitempty"`
	ClientType   string    `json:"client_type"`
	RedirectURIs []string  `json:"redirect_uris"`
	GrantType    string    `json:"grant_type"`
	ResponseType string    `json:"response_type"`
	Scopes       []string  `json:"scopes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AllowsRedirectURI reports whether uri is registered for the consumer.
func (c Consumer) AllowsRedirectURI(uri string) bool {
	for _, allowed := range c.RedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}

// AllowsScopes reports whether every requested scope is registered for the consumer.
func (c Consumer) AllowsScopes(requested []string) bool {
	for _, scope := range requested {
		found := false
		for _, allowed := range c.Scopes {
			if allowed == scope {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AuthorizationCode is a single-use grant issued to a consumer on behalf of a user.
type AuthorizationCode struct {
	Code              string    `json:"code"`
	ConsumerID        string    `json:"consumer_id"`
	AuthorizingUserID string    `json:"authorizing_user_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	Scopes            []string  `json:"scopes"`
	CreatedAt         time.Time `json:"created_at"`
}

func (c AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
