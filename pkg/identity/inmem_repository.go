package identity

import (
	"context"
	"fmt"
	"sync"
)

// InMemDirectory implements UserRepository and DomainRepository using in-memory maps
type InMemDirectory struct {
	domains map[string]Domain // keyed by domain ID
	users   map[string]User   // keyed by user ID
	mu      sync.RWMutex
}

// NewInMemDirectory creates an empty in-memory directory
func NewInMemDirectory() *InMemDirectory {
	return &InMemDirectory{
		domains: make(map[string]Domain),
		users:   make(map[string]User),
	}
}

// AddDomain inserts or replaces a domain. Domain names must be unique.
func (d *InMemDirectory) AddDomain(domain Domain) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, existing := range d.domains {
		if id != domain.ID && existing.Name == domain.Name {
			return fmt.Errorf("domain name already in use: %s", domain.Name)
		}
	}
	d.domains[domain.ID] = domain
	return nil
}

// AddUser inserts or replaces a user. The domain must exist and the name must be unique in it.
func (d *InMemDirectory) AddUser(user User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.domains[user.DomainID]; !ok {
		return fmt.Errorf("%w: %s", ErrDomainNotFound, user.DomainID)
	}
	for id, existing := range d.users {
		if id != user.ID && existing.DomainID == user.DomainID && existing.Name == user.Name {
			return fmt.Errorf("user name already in use in domain %s: %s", user.DomainID, user.Name)
		}
	}
	d.users[user.ID] = user
	return nil
}

func (d *InMemDirectory) GetUserByID(ctx context.Context, userID string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (d *InMemDirectory) GetUserByName(ctx context.Context, name, domainID string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, user := range d.users {
		if user.DomainID == domainID && user.Name == name {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (d *InMemDirectory) GetDomainByName(ctx context.Context, name string) (Domain, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, domain := range d.domains {
		if domain.Name == name {
			return domain, nil
		}
	}
	return Domain{}, ErrDomainNotFound
}
