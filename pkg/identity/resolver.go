package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	idmerrors "github.com/tendant/simple-idm-twofactor/pkg/errors"
)

const (
	lookupTarget = "query string"

	missingLookupAttribute   = "user_id or user_name and domain (id or name)"
	ambiguousLookupAttribute = "user_name and either domain_id or domain_name"
)

// LookupRequest addresses a user either directly by id or by name within a domain.
type LookupRequest struct {
	UserID     string `json:"user_id,omitempty"`
	UserName   string `json:"user_name,omitempty"`
	DomainID   string `json:"domain_id,omitempty"`
	DomainName string `json:"domain_name,omitempty"`
}

func (r LookupRequest) normalized() LookupRequest {
	return LookupRequest{
		UserID:     strings.TrimSpace(r.UserID),
		UserName:   strings.TrimSpace(r.UserName),
		DomainID:   strings.TrimSpace(r.DomainID),
		DomainName: strings.TrimSpace(r.DomainName),
	}
}

// Validate checks that exactly one addressing mode is fully specified.
func (r LookupRequest) Validate() error {
	r = r.normalized()
	if r.UserID != "" {
		return nil
	}
	if r.UserName == "" || (r.DomainID == "" && r.DomainName == "") {
		return idmerrors.ValidationError(missingLookupAttribute, lookupTarget)
	}
	if r.DomainID != "" && r.DomainName != "" {
		return idmerrors.ValidationError(ambiguousLookupAttribute, lookupTarget)
	}
	return nil
}

// Resolver turns a LookupRequest into a user id.
type Resolver struct {
	users   UserRepository
	domains DomainRepository
}

func NewResolver(users UserRepository, domains DomainRepository) *Resolver {
	return &Resolver{users: users, domains: domains}
}

// ResolveUserID returns UserID unchanged when set, without touching the
// repositories. Otherwise it resolves the domain, by name when needed, and
// looks the user up by (name, domain id).
func (r *Resolver) ResolveUserID(ctx context.Context, req LookupRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	req = req.normalized()
	if req.UserID != "" {
		return req.UserID, nil
	}

	domainID := req.DomainID
	if domainID == "" {
		domain, err := r.domains.GetDomainByName(ctx, req.DomainName)
		if err != nil {
			if errors.Is(err, ErrDomainNotFound) {
				return "", idmerrors.NotFound("domain", req.DomainName)
			}
			slog.Error("Failed to get domain by name", "domainName", req.DomainName, "error", err)
			return "", idmerrors.InternalWrap(err, "failed to get domain")
		}
		domainID = domain.ID
	}

	user, err := r.users.GetUserByName(ctx, req.UserName, domainID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", idmerrors.NotFound("user", req.UserName)
		}
		slog.Error("Failed to get user by name", "userName", req.UserName, "domainID", domainID, "error", err)
		return "", idmerrors.InternalWrap(err, "failed to get user")
	}
	return user.ID, nil
}

// LookupEmail returns the user's email address, used as the recipient of security notices.
func (r *Resolver) LookupEmail(ctx context.Context, userID string) (string, error) {
	user, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}
