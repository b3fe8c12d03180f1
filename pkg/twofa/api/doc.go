// Package api exposes the two-factor service over HTTP with chi.
//
// Routes are relative to the mount point, usually /OS-TWOFACTOR:
//
//	GET    /two_factor_auth?user_id=...                 {two_factor_enabled}
//	POST   /users/{user_id}/two_factor_auth             enroll, never returns the secret
//	DELETE /users/{user_id}/two_factor_auth             disable
//	POST   /users/{user_id}/two_factor_auth/sec_question {correct}
//	POST   /users/{user_id}/two_factor_auth/verify       {valid}
//	GET    /users/{user_id}/two_factor_data             non-sensitive data
//	POST   /devices?<lookup>                            remember a device
//	POST   /devices/check?<lookup>                      {trusted}
//	DELETE /users/{user_id}/devices                     {deleted}
//
// A lookup is either user_id, or user_name together with domain_id or domain_name.
package api
