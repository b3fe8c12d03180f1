package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDomainNotFound = errors.New("domain not found")
)

// Domain is a namespace for user names. Names are unique within a domain.
type Domain struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the subset of the identity record this module reads.
type User struct {
	ID        string    `json:"id"`
	DomainID  string    `json:"domain_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRepository looks users up by id or by (name, domain id).
type UserRepository interface {
	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserByName(ctx context.Context, name, domainID string) (User, error)
}

// DomainRepository resolves domain names to domains.
type DomainRepository interface {
	GetDomainByName(ctx context.Context, name string) (Domain, error)
}

// Directory is a store that serves both users and domains.
type Directory interface {
	UserRepository
	DomainRepository
}
