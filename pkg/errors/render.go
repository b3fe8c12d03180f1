package errors

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// Response is the JSON body written for a failed request.
type Response struct {
	Error   ErrorCode              `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToResponse converts err into a response body and status. Errors that are not
// *Error are reported as INTERNAL_ERROR without their text.
func ToResponse(err error) (Response, int) {
	var e *Error
	if errors.As(err, &e) {
		return Response{Error: e.Code, Message: e.Message, Details: e.Details}, e.HTTPStatusCode()
	}
	return Response{Error: ErrCodeInternal, Message: "internal error"}, http.StatusInternalServerError
}

// Render writes err as JSON with the status mapped from its code.
func Render(w http.ResponseWriter, r *http.Request, err error) {
	body, status := ToResponse(err)
	render.Status(r, status)
	render.JSON(w, r, body)
}
