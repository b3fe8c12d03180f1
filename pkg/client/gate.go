package client

import (
	"context"
	"log/slog"

	idmerrors "github.com/tendant/simple-idm-twofactor/pkg/errors"
)

// RoleGate lets a user act on their own records and admins act on anyone's.
type RoleGate struct {
	// AdminRoles defaults to DefaultAdminRoles when empty.
	AdminRoles []string
}

func (g RoleGate) Check(ctx context.Context, operation string, targetUserID string) error {
	user := GetAuthUser(ctx)
	if user == nil {
		return idmerrors.Unauthorized("authentication required")
	}

	if user.UserId == targetUserID && targetUserID != "" {
		return nil
	}

	adminRoles := g.AdminRoles
	if len(adminRoles) == 0 {
		adminRoles = DefaultAdminRoles
	}
	if IsAdminWithRoles(user, adminRoles) {
		return nil
	}

	slog.Warn("Operation denied", "operation", operation, "userId", user.UserId, "target", targetUserID)
	return idmerrors.Forbidden("not allowed to " + operation).
		WithDetail("operation", operation)
}

// AllowAllGate permits every operation. For trusted internal callers and tests.
type AllowAllGate struct{}

func (AllowAllGate) Check(ctx context.Context, operation string, targetUserID string) error {
	return nil
}
