// Package errors provides structured error handling with error codes for the
// two-factor and OAuth2 consumer services.
//
// Every failure surfaced by a service is an *Error carrying an ErrorCode, a
// human-readable message and optional details. HTTP adapters turn the code into
// a status with MapErrorCodeToHTTPStatus.
//
// # Basic Usage
//
//	err := errors.NotFound("two factor profile", userID)
//	err := errors.ValidationError("device_token", "request body")
//	err := errors.InternalWrap(dbErr, "failed to load profile")
//
// # Error Inspection
//
//	if errors.IsCode(err, errors.ErrCodeNotFound) {
//		// Handle not found case
//	}
//
//	details := errors.GetDetails(err)
//	attr, _ := details[errors.DetailAttribute].(string)
//
// # HTTP Status Code Mapping
//
//	VALIDATION_FAILED, INVALID_INPUT, MISSING_REQUIRED  -> 400
//	UNAUTHORIZED, TWO_FA_INVALID                        -> 401
//	FORBIDDEN                                           -> 403
//	NOT_FOUND                                           -> 404
//	CONFLICT                                            -> 409
//	RATE_LIMIT_EXCEEDED                                 -> 429
//	everything else                                     -> 500
package errors
