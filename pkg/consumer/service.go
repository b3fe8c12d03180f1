package consumer

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	idmerrors "github.com/tendant/simple-idm-twofactor/pkg/errors"
	"github.com/tendant/simple-idm-twofactor/pkg/utils"
)

const DefaultCodeTTL = 10 * time.Minute

const requestTarget = "request"

var (
	clientTypes = map[string]bool{ClientTypeConfidential: true}
	// response type is derived from the grant type
	grantResponseTypes = map[string]string{GrantTypeAuthorizationCode: ResponseTypeCode}
)

type (
	CreateConsumerParams struct {
		ID           string
		Description  string
		ClientType   string
		RedirectURIs []string
		GrantType    string
		Scopes       []string
	}

	// UpdateConsumerParams holds the fields to change; nil fields keep the stored value.
	UpdateConsumerParams struct {
		Description  *string
		ClientType   *string
		RedirectURIs []string
		GrantType    *string
		Scopes       []string
	}

	CreateAuthorizationCodeParams struct {
		ConsumerID        string
		AuthorizingUserID string
		Scopes            []string
	}
)

type ServiceOption func(*ConsumerService)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *ConsumerService) {
		s.now = now
	}
}

// WithCodeTTL sets how long issued authorization codes stay valid.
func WithCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *ConsumerService) {
		if ttl > 0 {
			s.codeTTL = ttl
		}
	}
}

// ConsumerService manages OAuth2 consumers and the authorization codes issued to them.
type ConsumerService struct {
	repo    Repository
	now     func() time.Time
	codeTTL time.Duration
}

func NewConsumerService(repo Repository, opts ...ServiceOption) *ConsumerService {
	s := &ConsumerService{
		repo:    repo,
		now:     func() time.Time { return time.Now().UTC() },
		codeTTL: DefaultCodeTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ConsumerService) CodeTTL() time.Duration {
	return s.codeTTL
}

func newHexID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

func validateRedirectURIs(uris []string) error {
	if len(uris) == 0 {
		return idmerrors.ValidationError("redirect_uris", requestTarget)
	}
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return idmerrors.ValidationError("redirect_uris", requestTarget).
				WithDetail("invalid_uri", raw)
		}
	}
	return nil
}

func validateTypes(clientType, grantType string) error {
	if !clientTypes[clientType] {
		return idmerrors.ValidationError("client_type", requestTarget).
			WithDetail("allowed", []string{ClientTypeConfidential})
	}
	if _, ok := grantResponseTypes[grantType]; !ok {
		return idmerrors.ValidationError("grant_type", requestTarget).
			WithDetail("allowed", []string{GrantTypeAuthorizationCode})
	}
	return nil
}

func descriptionOrNil(description string) *string {
	if strings.TrimSpace(description) == "" {
		return nil
	}
	return &description
}

func consumerError(err error, id, message string) error {
	if errors.Is(err, ErrConsumerNotFound) {
		return idmerrors.NotFound("consumer", id)
	}
	slog.Error(message, "consumerID", id, "error", err)
	return idmerrors.InternalWrap(err, message)
}

func (s *ConsumerService) ListConsumers(ctx context.Context) ([]Consumer, error) {
	consumers, err := s.repo.ListConsumers(ctx)
	if err != nil {
		slog.Error("failed to list consumers", "error", err)
		return nil, idmerrors.InternalWrap(err, "failed to list consumers")
	}
	return consumers, nil
}

// CreateConsumer registers a consumer. The secret is always generated and is
// only meant to be shown to the caller once.
func (s *ConsumerService) CreateConsumer(ctx context.Context, params CreateConsumerParams) (Consumer, error) {
	clientType := params.ClientType
	if clientType == "" {
		clientType = ClientTypeConfidential
	}
	grantType := params.GrantType
	if grantType == "" {
		grantType = GrantTypeAuthorizationCode
	}
	if err := validateTypes(clientType, grantType); err != nil {
		return Consumer{}, err
	}
	if err := validateRedirectURIs(params.RedirectURIs); err != nil {
		return Consumer{}, err
	}

	id := strings.TrimSpace(params.ID)
	if id == "" {
		generated, err := newHexID()
		if err != nil {
			return Consumer{}, idmerrors.InternalWrap(err, "failed to generate consumer id")
		}
		id = generated
	}
	secret, err := newHexID()
	if err != nil {
		return Consumer{}, idmerrors.InternalWrap(err, "failed to generate consumer secret")
	}

	scopes := utils.CopyStrings(params.Scopes)
	if scopes == nil {
		scopes = []string{}
	}

	now := s.now()
	consumer := Consumer{
		ID:           id,
		Description:  descriptionOrNil(params.Description),
		Secret:       secret,
		ClientType:   clientType,
		RedirectURIs: utils.CopyStrings(params.RedirectURIs),
		GrantType:    grantType,
		ResponseType: grantResponseTypes[grantType],
		Scopes:       scopes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.CreateConsumer(ctx, consumer)
	if err != nil {
		if errors.Is(err, ErrConsumerExists) {
			return Consumer{}, idmerrors.Conflict("consumer already exists").WithDetail("id", id)
		}
		slog.Error("failed to create consumer", "consumerID", id, "error", err)
		return Consumer{}, idmerrors.InternalWrap(err, "failed to create consumer")
	}
	slog.Info("consumer created", "consumerID", id)
	return created, nil
}

func (s *ConsumerService) GetConsumer(ctx context.Context, id string) (Consumer, error) {
	consumer, err := s.repo.GetConsumer(ctx, id)
	if err != nil {
		return Consumer{}, consumerError(err, id, "failed to get consumer")
	}
	return consumer, nil
}

// UpdateConsumer merges params onto the stored consumer and saves the result.
// The id and secret never change.
func (s *ConsumerService) UpdateConsumer(ctx context.Context, id string, params UpdateConsumerParams) (Consumer, error) {
	consumer, err := s.repo.GetConsumer(ctx, id)
	if err != nil {
		return Consumer{}, consumerError(err, id, "failed to get consumer")
	}

	if params.Description != nil {
		consumer.Description = descriptionOrNil(*params.Description)
	}
	if params.ClientType != nil {
		consumer.ClientType = *params.ClientType
	}
	if params.GrantType != nil {
		consumer.GrantType = *params.GrantType
	}
	if err := validateTypes(consumer.ClientType, consumer.GrantType); err != nil {
		return Consumer{}, err
	}
	consumer.ResponseType = grantResponseTypes[consumer.GrantType]

	if params.RedirectURIs != nil {
		if err := validateRedirectURIs(params.RedirectURIs); err != nil {
			return Consumer{}, err
		}
		consumer.RedirectURIs = utils.CopyStrings(params.RedirectURIs)
	}
	if params.Scopes != nil {
		consumer.Scopes = utils.CopyStrings(params.Scopes)
	}
	consumer.UpdatedAt = s.now()

	updated, err := s.repo.UpdateConsumer(ctx, consumer)
	if err != nil {
		return Consumer{}, consumerError(err, id, "failed to update consumer")
	}
	return updated, nil
}

// DeleteConsumer removes the consumer together with its authorization codes.
func (s *ConsumerService) DeleteConsumer(ctx context.Context, id string) error {
	if err := s.repo.DeleteConsumer(ctx, id); err != nil {
		return consumerError(err, id, "failed to delete consumer")
	}
	slog.Info("consumer deleted", "consumerID", id)
	return nil
}

func (s *ConsumerService) ListAuthorizationCodes(ctx context.Context) ([]AuthorizationCode, error) {
	codes, err := s.repo.ListAuthorizationCodes(ctx)
	if err != nil {
		slog.Error("failed to list authorization codes", "error", err)
		return nil, idmerrors.InternalWrap(err, "failed to list authorization codes")
	}
	return codes, nil
}

// CreateAuthorizationCode issues a code for a user who approved the consumer.
// Requested scopes must all be registered for the consumer.
func (s *ConsumerService) CreateAuthorizationCode(ctx context.Context, params CreateAuthorizationCodeParams) (AuthorizationCode, error) {
	if params.ConsumerID == "" {
		return AuthorizationCode{}, idmerrors.ValidationError("consumer_id", requestTarget)
	}
	if params.AuthorizingUserID == "" {
		return AuthorizationCode{}, idmerrors.ValidationError("authorizing_user_id", requestTarget)
	}

	consumer, err := s.repo.GetConsumer(ctx, params.ConsumerID)
	if err != nil {
		return AuthorizationCode{}, consumerError(err, params.ConsumerID, "failed to get consumer")
	}
	if !consumer.AllowsScopes(params.Scopes) {
		return AuthorizationCode{}, idmerrors.ValidationError("scopes", requestTarget).
			WithDetail("allowed", consumer.Scopes)
	}

	value, err := utils.RandomHex(32)
	if err != nil {
		return AuthorizationCode{}, idmerrors.InternalWrap(err, "failed to generate authorization code")
	}

	scopes := utils.CopyStrings(params.Scopes)
	if scopes == nil {
		scopes = []string{}
	}
	now := s.now()
	code := AuthorizationCode{
		Code:              value,
		ConsumerID:        consumer.ID,
		AuthorizingUserID: params.AuthorizingUserID,
		ExpiresAt:         now.Add(s.codeTTL),
		Scopes:            scopes,
		CreatedAt:         now,
	}

	created, err := s.repo.CreateAuthorizationCode(ctx, code)
	if err != nil {
		return AuthorizationCode{}, consumerError(err, consumer.ID, "failed to create authorization code")
	}
	return created, nil
}

// ConsumeAuthorizationCode redeems code for consumerID. A code is removed on
// first redemption, so a second call reports NOT_FOUND.
func (s *ConsumerService) ConsumeAuthorizationCode(ctx context.Context, code, consumerID string) (AuthorizationCode, error) {
	if code == "" {
		return AuthorizationCode{}, idmerrors.ValidationError("code", requestTarget)
	}

	taken, err := s.repo.TakeAuthorizationCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrAuthorizationCodeNotFound) {
			return AuthorizationCode{}, idmerrors.NotFound("authorization code", "")
		}
		slog.Error("failed to take authorization code", "consumerID", consumerID, "error", err)
		return AuthorizationCode{}, idmerrors.InternalWrap(err, "failed to take authorization code")
	}

	if taken.IsExpired(s.now()) {
		return AuthorizationCode{}, idmerrors.NotFound("authorization code", "")
	}
	if taken.ConsumerID != consumerID {
		slog.Warn("authorization code presented by another consumer",
			"consumerID", consumerID, "issuedTo", taken.ConsumerID)
		return AuthorizationCode{}, idmerrors.ValidationError("consumer_id", requestTarget)
	}
	return taken, nil
}
