package consumer

import (
	"context"
)

// Repository stores consumers and their authorization codes.
type Repository interface {
	ListConsumers(ctx context.Context) ([]Consumer, error)

	// CreateConsumer returns ErrConsumerExists when the id is taken.
	CreateConsumer(ctx context.Context, consumer Consumer) (Consumer, error)

	// GetConsumer returns ErrConsumerNotFound when absent.
	GetConsumer(ctx context.Context, id string) (Consumer, error)

	// UpdateConsumer replaces every mutable field and returns ErrConsumerNotFound when absent.
	UpdateConsumer(ctx context.Context, consumer Consumer) (Consumer, error)

	// DeleteConsumer removes the consumer and its authorization codes.
	DeleteConsumer(ctx context.Context, id string) error

	ListAuthorizationCodes(ctx context.Context) ([]AuthorizationCode, error)

	// CreateAuthorizationCode returns ErrConsumerNotFound when the consumer does not exist.
	CreateAuthorizationCode(ctx context.Context, code AuthorizationCode) (AuthorizationCode, error)

	// TakeAuthorizationCode deletes the code and returns it, so each code is
	// returned at most once. ErrAuthorizationCodeNotFound when absent.
	TakeAuthorizationCode(ctx context.Context, code string) (AuthorizationCode, error)
}
