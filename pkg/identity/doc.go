// Package identity resolves users for the two-factor service.
//
// Users are addressed either directly by id or by name within a domain, the
// domain given by id or by name:
//
//	resolver := identity.NewResolver(directory, directory)
//	userID, err := resolver.ResolveUserID(ctx, identity.LookupRequest{
//		UserName:   "ann",
//		DomainName: "default",
//	})
//
// A request with a user id never touches the repositories. Requests that name
// neither mode, or give both a domain id and a domain name, fail with
// VALIDATION_FAILED.
//
// The directory itself is owned by the identity service; this package only reads it.
package identity
