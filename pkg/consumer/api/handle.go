package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/tendant/simple-idm-twofactor/pkg/consumer"
	idmerrors "github.com/tendant/simple-idm-twofactor/pkg/errors"
	"github.com/tendant/simple-idm-twofactor/pkg/utils"
)

type (
	CreateConsumerRequest struct {
		ID           string   `json:"id,omitempty" validate:"omitempty,max=64"`
		Description  string   `json:"description,omitempty"`
		ClientType   string   `json:"client_type,omitempty"`
		RedirectURIs []string `json:"redirect_uris" validate:"required,min=1,dive,url"`
		GrantType    string   `json:"grant_type,omitempty"`
		Scopes       []string `json:"scopes,omitempty" validate:"omitempty,dive,required"`
	}

	UpdateConsumerRequest struct {
		Description  *string  `json:"description,omitempty"`
		ClientType   *string  `json:"client_type,omitempty"`
		RedirectURIs []string `json:"redirect_uris,omitempty" validate:"omitempty,min=1,dive,url"`
		GrantType    *string  `json:"grant_type,omitempty"`
		Scopes       []string `json:"scopes,omitempty" validate:"omitempty,dive,required"`
	}

	IssueAuthorizationCodeRequest struct {
		ConsumerID        string   `json:"consumer_id" validate:"required,max=64"`
		AuthorizingUserID string   `json:"authorizing_user_id" validate:"required,max=64"`
		Scopes            []string `json:"scopes,omitempty" validate:"omitempty,dive,required"`
	}

	RedeemAuthorizationCodeRequest struct {
		Code       string `json:"code" validate:"required,max=64"`
		ConsumerID string `json:"consumer_id" validate:"required,max=64"`
	}
)

type (
	// ConsumerResponse never carries the secret.
	ConsumerResponse struct {
		ID           string    `json:"id"`
		Description  *string   `json:"description"`
		ClientType   string    `json:"client_type"`
		RedirectURIs []string  `json:"redirect_uris"`
		GrantType    string    `json:"grant_type"`
		ResponseType string    `json:"response_type"`
		Scopes       []string  `json:"scopes"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	}

	// CreatedConsumerResponse is returned once, on registration.
	CreatedConsumerResponse struct {
		ID           string    `json:"id"`
		Secret       string    `json:"secret"`
		Description  *string   `json:"description"`
		ClientType   string    `json:"client_type"`
		RedirectURIs []string  `json:"redirect_uris"`
		GrantType    string    `json:"grant_type"`
		ResponseType string    `json:"response_type"`
		Scopes       []string  `json:"scopes"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	}

	ConsumerListResponse struct {
		Consumers []ConsumerResponse `json:"consumers"`
	}

	AuthorizationCodeResponse struct {
		Code              string    `json:"code"`
		ConsumerID        string    `json:"consumer_id"`
		AuthorizingUserID string    `json:"authorizing_user_id"`
		ExpiresAt         time.Time `json:"expires_at"`
		Scopes            []string  `json:"scopes"`
		CreatedAt         time.Time `json:"created_at"`
	}

	AuthorizationCodeListResponse struct {
		AuthorizationCodes []AuthorizationCodeResponse `json:"authorization_codes"`
	}
)

type Handle struct {
	consumerService *consumer.ConsumerService
}

func NewHandle(consumerService *consumer.ConsumerService) *Handle {
	return &Handle{consumerService: consumerService}
}

// ConsumerHandler returns the consumer administration routes. Callers mount it
// behind an admin check.
func ConsumerHandler(h *Handle) http.Handler {
	r := chi.NewRouter()

	r.Get("/consumers", h.ListConsumers)
	r.Post("/consumers", h.CreateConsumer)
	r.Get("/consumers/{consumer_id}", h.GetConsumer)
	r.Patch("/consumers/{consumer_id}", h.UpdateConsumer)
	r.Delete("/consumers/{consumer_id}", h.DeleteConsumer)
	r.Get("/authorization_codes", h.ListAuthorizationCodes)
	r.Post("/authorization_codes", h.IssueAuthorizationCode)
	r.Post("/authorization_codes/redeem", h.RedeemAuthorizationCode)

	return r
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	if idmerrors.GetCode(err) == idmerrors.ErrCodeInternal {
		slog.Error("Consumer request failed", "path", r.URL.Path, "error", err)
	}
	idmerrors.Render(w, r, err)
}

func toAuthorizationCodeResponse(code consumer.AuthorizationCode) AuthorizationCodeResponse {
	var resp AuthorizationCodeResponse
	copier.Copy(&resp, &code)
	if resp.Scopes == nil {
		resp.Scopes = []string{}
	}
	return resp
}

func toConsumerResponse(c consumer.Consumer) ConsumerResponse {
	var resp ConsumerResponse
	copier.Copy(&resp, &c)
	if resp.RedirectURIs == nil {
		resp.RedirectURIs = []string{}
	}
	if resp.Scopes == nil {
		resp.Scopes = []string{}
	}
	return resp
}

// GET /consumers
func (h *Handle) ListConsumers(w http.ResponseWriter, r *http.Request) {
	consumers, err := h.consumerService.ListConsumers(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	resp := ConsumerListResponse{Consumers: make([]ConsumerResponse, 0, len(consumers))}
	for _, c := range consumers {
		resp.Consumers = append(resp.Consumers, toConsumerResponse(c))
	}
	render.JSON(w, r, resp)
}

// POST /consumers
func (h *Handle) CreateConsumer(w http.ResponseWriter, r *http.Request) {
	var req CreateConsumerRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	var params consumer.CreateConsumerParams
	copier.Copy(&params, &req)

	created, err := h.consumerService.CreateConsumer(r.Context(), params)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var resp CreatedConsumerResponse
	copier.Copy(&resp, &created)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// GET /consumers/{consumer_id}
func (h *Handle) GetConsumer(w http.ResponseWriter, r *http.Request) {
	c, err := h.consumerService.GetConsumer(r.Context(), chi.URLParam(r, "consumer_id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, toConsumerResponse(c))
}

// PATCH /consumers/{consumer_id}
func (h *Handle) UpdateConsumer(w http.ResponseWriter, r *http.Request) {
	var req UpdateConsumerRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	updated, err := h.consumerService.UpdateConsumer(r.Context(), chi.URLParam(r, "consumer_id"), consumer.UpdateConsumerParams{
		Description:  req.Description,
		ClientType:   req.ClientType,
		RedirectURIs: req.RedirectURIs,
		GrantType:    req.GrantType,
		Scopes:       req.Scopes,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, toConsumerResponse(updated))
}

// DELETE /consumers/{consumer_id}
func (h *Handle) DeleteConsumer(w http.ResponseWriter, r *http.Request) {
	if err := h.consumerService.DeleteConsumer(r.Context(), chi.URLParam(r, "consumer_id")); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /authorization_codes
func (h *Handle) ListAuthorizationCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.consumerService.ListAuthorizationCodes(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	resp := AuthorizationCodeListResponse{AuthorizationCodes: []AuthorizationCodeResponse{}}
	if err := copier.Copy(&resp.AuthorizationCodes, &codes); err != nil {
		renderError(w, r, idmerrors.InternalWrap(err, "failed to map authorization codes"))
		return
	}
	render.JSON(w, r, resp)
}

// POST /authorization_codes
func (h *Handle) IssueAuthorizationCode(w http.ResponseWriter, r *http.Request) {
	var req IssueAuthorizationCodeRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	code, err := h.consumerService.CreateAuthorizationCode(r.Context(), consumer.CreateAuthorizationCodeParams{
		ConsumerID:        req.ConsumerID,
		AuthorizingUserID: req.AuthorizingUserID,
		Scopes:            req.Scopes,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toAuthorizationCodeResponse(code))
}

// POST /authorization_codes/redeem
// The code is spent whether or not the consumer matches.
func (h *Handle) RedeemAuthorizationCode(w http.ResponseWriter, r *http.Request) {
	var req RedeemAuthorizationCodeRequest
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	code, err := h.consumerService.ConsumeAuthorizationCode(r.Context(), req.Code, req.ConsumerID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, toAuthorizationCodeResponse(code))
}
