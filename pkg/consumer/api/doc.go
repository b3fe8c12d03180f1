// Package api exposes OAuth2 consumer administration over HTTP. Mount it under
// /OS-OAUTH2 behind client.AdminRoleMiddleware.
//
//	GET    /consumers
//	POST   /consumers                       secret returned once
//	GET    /consumers/{consumer_id}
//	PATCH  /consumers/{consumer_id}
//	DELETE /consumers/{consumer_id}
//	GET    /authorization_codes
//	POST   /authorization_codes             issue a code for a user
//	POST   /authorization_codes/redeem      single use, for the token endpoint
package api
