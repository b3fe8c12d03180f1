package consumer

import (
	"context"
	"sort"
	"sync"

	"github.com/tendant/simple-idm-twofactor/pkg/utils"
)

// InMemRepository implements Repository using in-memory maps. When persist is
// set, every mutation is written through it and rolled back if it fails.
type InMemRepository struct {
	consumers map[string]Consumer
	codes     map[string]AuthorizationCode
	persist   func(snapshot) error
	mu        sync.RWMutex
}

type snapshot struct {
	Consumers []Consumer          `json:"consumers"`
	Codes     []AuthorizationCode `json:"authorization_codes"`
}

func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		consumers: make(map[string]Consumer),
		codes:     make(map[string]AuthorizationCode),
	}
}

func copyConsumer(c Consumer) Consumer {
	c.RedirectURIs = utils.CopyStrings(c.RedirectURIs)
	c.Scopes = utils.CopyStrings(c.Scopes)
	if c.Description != nil {
		d := *c.Description
		c.Description = &d
	}
	return c
}

func copyCode(c AuthorizationCode) AuthorizationCode {
	c.Scopes = utils.CopyStrings(c.Scopes)
	return c
}

// snapshotLocked must be called with the lock held.
func (r *InMemRepository) snapshotLocked() snapshot {
	s := snapshot{
		Consumers: make([]Consumer, 0, len(r.consumers)),
		Codes:     make([]AuthorizationCode, 0, len(r.codes)),
	}
	for _, c := range r.consumers {
		s.Consumers = append(s.Consumers, copyConsumer(c))
	}
	for _, c := range r.codes {
		s.Codes = append(s.Codes, copyCode(c))
	}
	sort.Slice(s.Consumers, func(i, j int) bool { return s.Consumers[i].ID < s.Consumers[j].ID })
	sort.Slice(s.Codes, func(i, j int) bool { return s.Codes[i].Code < s.Codes[j].Code })
	return s
}

// commit persists the current state; on failure undo restores the previous one.
func (r *InMemRepository) commit(undo func()) error {
	if r.persist == nil {
		return nil
	}
	if err := r.persist(r.snapshotLocked()); err != nil {
		undo()
		return err
	}
	return nil
}

func (r *InMemRepository) ListConsumers(ctx context.Context) ([]Consumer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked().Consumers, nil
}

func (r *InMemRepository) CreateConsumer(ctx context.Context, consumer Consumer) (Consumer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.consumers[consumer.ID]; ok {
		return Consumer{}, ErrConsumerExists
	}
	r.consumers[consumer.ID] = copyConsumer(consumer)
	if err := r.commit(func() { delete(r.consumers, consumer.ID) }); err != nil {
		return Consumer{}, err
	}
	return copyConsumer(consumer), nil
}

func (r *InMemRepository) GetConsumer(ctx context.Context, id string) (Consumer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.consumers[id]
	if !ok {
		return Consumer{}, ErrConsumerNotFound
	}
	return copyConsumer(c), nil
}

func (r *InMemRepository) UpdateConsumer(ctx context.Context, consumer Consumer) (Consumer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, ok := r.consumers[consumer.ID]
	if !ok {
		return Consumer{}, ErrConsumerNotFound
	}
	consumer.Secret = previous.Secret
	consumer.CreatedAt = previous.CreatedAt
	r.consumers[consumer.ID] = copyConsumer(consumer)
	if err := r.commit(func() { r.consumers[consumer.ID] = previous }); err != nil {
		return Consumer{}, err
	}
	return copyConsumer(consumer), nil
}

func (r *InMemRepository) DeleteConsumer(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, ok := r.consumers[id]
	if !ok {
		return ErrConsumerNotFound
	}
	removedCodes := map[string]AuthorizationCode{}
	for code, c := range r.codes {
		if c.ConsumerID == id {
			removedCodes[code] = c
			delete(r.codes, code)
		}
	}
	delete(r.consumers, id)

	return r.commit(func() {
		r.consumers[id] = previous
		for code, c := range removedCodes {
			r.codes[code] = c
		}
	})
}

func (r *InMemRepository) ListAuthorizationCodes(ctx context.Context) ([]AuthorizationCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked().Codes, nil
}

func (r *InMemRepository) CreateAuthorizationCode(ctx context.Context, code AuthorizationCode) (AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.consumers[code.ConsumerID]; !ok {
		return AuthorizationCode{}, ErrConsumerNotFound
	}
	r.codes[code.Code] = copyCode(code)
	if err := r.commit(func() { delete(r.codes, code.Code) }); err != nil {
		return AuthorizationCode{}, err
	}
	return copyCode(code), nil
}

func (r *InMemRepository) TakeAuthorizationCode(ctx context.Context, code string) (AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.codes[code]
	if !ok {
		return AuthorizationCode{}, ErrAuthorizationCodeNotFound
	}
	delete(r.codes, code)
	if err := r.commit(func() { r.codes[code] = c }); err != nil {
		return AuthorizationCode{}, err
	}
	return c, nil
}
