package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-idm-twofactor/pkg/device"
	idmerrors "github.com/tendant/simple-idm-twofactor/pkg/errors"
	"github.com/tendant/simple-idm-twofactor/pkg/identity"
	"github.com/tendant/simple-idm-twofactor/pkg/ratelimit"
	"github.com/tendant/simple-idm-twofactor/pkg/twofa"
	"github.com/tendant/simple-idm-twofactor/pkg/utils"
)

// UserIDResolver turns query string addressing into a user id.
type UserIDResolver interface {
	ResolveUserID(ctx context.Context, req identity.LookupRequest) (string, error)
}

type (
	EnableRequest struct {
		SecurityQuestion string `json:"security_question,omitempty" validate:"omitempty,max=255"`
		SecurityAnswer   string `json:"security_answer,omitempty" validate:"omitempty,max=255"`
	}

	SecurityAnswerRequest struct {
		SecAnswer string `json:"sec_answer" validate:"required"`
	}

	VerifyCodeRequest struct {
		Code string `json:"code" validate:"required,numeric,len=6"`
	}

	DeviceRequest struct {
		DeviceID    string `json:"device_id,omitempty" validate:"omitempty,max=64"`
		DeviceToken string `json:"device_token,omitempty" validate:"omitempty,max=128"`
	}
)

type (
	EnabledResponse struct {
		TwoFactorEnabled bool `json:"two_factor_enabled"`
	}

	// EnrollmentResponse never carries the secret.
	EnrollmentResponse struct {
		UserID           string `json:"user_id"`
		TwoFactorEnabled bool   `json:"two_factor_enabled"`
		SecurityQuestion string `json:"security_question,omitempty"`
	}

	CorrectResponse struct {
		Correct bool `json:"correct"`
	}

	ValidResponse struct {
		Valid bool `json:"valid"`
	}

	TrustedResponse struct {
		Trusted bool `json:"trusted"`
	}

	DeletedResponse struct {
		Deleted int64 `json:"deleted"`
	}
)

type Handle struct {
	service  *twofa.TwoFactorService
	resolver UserIDResolver
}

func NewHandle(service *twofa.TwoFactorService, resolver UserIDResolver) *Handle {
	return &Handle{service: service, resolver: resolver}
}

// TwoFactorHandler returns the 2FA routes. challenge wraps the routes that check
// a secret (security answer, TOTP code, device token); pass nil for none.
func TwoFactorHandler(h *Handle, challenge func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.With(h.ResolveUser(twofa.OpIsTwoFactorEnabled)).Get("/two_factor_auth", h.GetTwoFactorEnabled)
	r.With(h.ResolveUser(twofa.OpRememberDevice)).Post("/devices", h.RememberDevice)

	r.Route("/users/{user_id}", func(r chi.Router) {
		r.Post("/two_factor_auth", h.EnableTwoFactor)
		r.Delete("/two_factor_auth", h.DisableTwoFactor)
		r.Get("/two_factor_data", h.GetTwoFactorData)
		r.Delete("/devices", h.ForgetDevices)

		r.Group(func(r chi.Router) {
			if challenge != nil {
				r.Use(challenge)
			}
			r.Post("/two_factor_auth/sec_question", h.CheckSecurityQuestion)
			r.Post("/two_factor_auth/verify", h.VerifyCode)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.ResolveUser(twofa.OpCheckForDevice))
		if challenge != nil {
			r.Use(challenge)
		}
		r.Post("/devices/check", h.CheckForDevice)
	})

	return r
}

func lookupFromQuery(r *http.Request) identity.LookupRequest {
	q := r.URL.Query()
	return identity.LookupRequest{
		UserID:     q.Get("user_id"),
		UserName:   q.Get("user_name"),
		DomainID:   q.Get("domain_id"),
		DomainName: q.Get("domain_name"),
	}
}

// resolveUser hides whether a user exists from callers the gate would refuse.
func (h *Handle) resolveUser(r *http.Request, operation string) (string, error) {
	userID, err := h.resolver.ResolveUserID(r.Context(), lookupFromQuery(r))
	if idmerrors.IsCode(err, idmerrors.ErrCodeNotFound) {
		if gateErr := h.service.Authorize(r.Context(), operation, ""); gateErr != nil {
			return "", gateErr
		}
	}
	return userID, err
}

type resolvedUserKey struct{}

// ResolveUser resolves the query string lookup before the handler runs and
// records the user as the rate limiting subject.
func (h *Handle) ResolveUser(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := h.resolveUser(r, operation)
			if err != nil {
				renderError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), resolvedUserKey{}, userID)
			ctx = ratelimit.WithSubject(ctx, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolvedUserID(r *http.Request) string {
	userID, _ := r.Context().Value(resolvedUserKey{}).(string)
	return userID
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	if idmerrors.GetCode(err) == idmerrors.ErrCodeInternal {
		slog.Error("Two factor request failed", "path", r.URL.Path, "error", err)
	}
	idmerrors.Render(w, r, err)
}

// GET /two_factor_auth?user_id=... or ?user_name=...&domain_id|domain_name=...
func (h *Handle) GetTwoFactorEnabled(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.service.IsTwoFactorEnabled(r.Context(), resolvedUserID(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, EnabledResponse{TwoFactorEnabled: enabled})
}

// POST /users/{user_id}/two_factor_auth
func (h *Handle) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	var req EnableRequest
	if r.ContentLength != 0 {
		if err := utils.DecodeJSONBody(r, &req); err != nil {
			renderError(w, r, err)
			return
		}
	}

	profile, err := h.service.CreateTwoFactorKey(r.Context(), userID, &twofa.EnableOptions{
		SecurityQuestion: req.SecurityQuestion,
		SecurityAnswer:   req.SecurityAnswer,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, EnrollmentResponse{
		UserID:           profile.UserID,
		TwoFactorEnabled: profile.Enabled(),
		SecurityQuestion: profile.SecurityQuestion,
	})
}

// DELETE /users/{user_id}/two_factor_auth
func (h *Handle) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTwoFactorKey(r.Context(), chi.URLParam(r, "user_id")); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /users/{user_id}/two_factor_auth/sec_question
func (h *Handle) CheckSecurityQuestion(w http.ResponseWriter, r *http.Request) {
	var req SecurityAnswerRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	correct, err := h.service.CheckSecurityQuestion(r.Context(), chi.URLParam(r, "user_id"), req.SecAnswer)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, CorrectResponse{Correct: correct})
}

// POST /users/{user_id}/two_factor_auth/verify
func (h *Handle) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	valid, err := h.service.VerifyTwoFactorCode(r.Context(), chi.URLParam(r, "user_id"), req.Code)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, ValidResponse{Valid: valid})
}

// GET /users/{user_id}/two_factor_data
func (h *Handle) GetTwoFactorData(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.GetTwoFactorData(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	if data.RememberedDevices == nil {
		data.RememberedDevices = []device.RememberedDevice{}
	}
	render.JSON(w, r, data)
}

// POST /devices?<lookup>
// Both device fields may be omitted to remember a new device.
func (h *Handle) RememberDevice(w http.ResponseWriter, r *http.Request) {
	var req DeviceRequest
	if r.ContentLength != 0 {
		if err := utils.DecodeJSONBody(r, &req); err != nil {
			renderError(w, r, err)
			return
		}
	}

	remembered, err := h.service.RememberDevice(r.Context(), twofa.RememberDeviceParams{
		UserID:      resolvedUserID(r),
		DeviceID:    req.DeviceID,
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, remembered)
}

// POST /devices/check?<lookup>
func (h *Handle) CheckForDevice(w http.ResponseWriter, r *http.Request) {
	var req DeviceRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	trusted, err := h.service.CheckForDevice(r.Context(), twofa.CheckDeviceParams{
		UserID:      resolvedUserID(r),
		DeviceID:    req.DeviceID,
		DeviceToken: req.DeviceToken,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, TrustedResponse{Trusted: trusted})
}

// DELETE /users/{user_id}/devices
func (h *Handle) ForgetDevices(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.DeleteAllDevices(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, DeletedResponse{Deleted: deleted})
}
