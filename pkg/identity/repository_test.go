package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-idm-twofactor/internal/pgtest"
)

func runDirectoryContract(t *testing.T, dir Directory) {
	ctx := context.Background()

	user, err := dir.GetUserByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ann", user.Name)
	assert.Equal(t, "ann@example.com", user.Email)

	user, err = dir.GetUserByName(ctx, "ann", "dom-2")
	require.NoError(t, err)
	assert.Equal(t, "user-2", user.ID)
	assert.Empty(t, user.Email)

	domain, err := dir.GetDomainByName(ctx, "partners")
	require.NoError(t, err)
	assert.Equal(t, "dom-2", domain.ID)

	_, err = dir.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = dir.GetUserByName(ctx, "ann", "dom-3")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = dir.GetDomainByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrDomainNotFound)
}

func TestInMemDirectory(t *testing.T) {
	runDirectoryContract(t, seededDirectory(t).InMemDirectory)
}

func TestInMemDirectoryConstraints(t *testing.T) {
	dir := NewInMemDirectory()
	require.NoError(t, dir.AddDomain(Domain{ID: "dom-1", Name: "default"}))
	assert.Error(t, dir.AddDomain(Domain{ID: "dom-2", Name: "default"}))

	assert.ErrorIs(t, dir.AddUser(User{ID: "user-1", DomainID: "nope", Name: "ann"}), ErrDomainNotFound)
	require.NoError(t, dir.AddUser(User{ID: "user-1", DomainID: "dom-1", Name: "ann"}))
	assert.Error(t, dir.AddUser(User{ID: "user-2", DomainID: "dom-1", Name: "ann"}))
	require.NoError(t, dir.AddUser(User{ID: "user-1", DomainID: "dom-1", Name: "ann", Email: "new@example.com"}))
}

func TestFileDirectory(t *testing.T) {
	dataDir := t.TempDir()
	content := `{
  "domains": [
    {"id": "dom-1", "name": "default", "enabled": true},
    {"id": "dom-2", "name": "partners", "enabled": true}
  ],
  "users": [
    {"id": "user-1", "domain_id": "dom-1", "name": "ann", "email": "ann@example.com", "enabled": true},
    {"id": "user-2", "domain_id": "dom-2", "name": "ann", "enabled": true}
  ]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, directoryFileName), []byte(content), 0600))

	dir, err := NewFileDirectory(dataDir)
	require.NoError(t, err)
	runDirectoryContract(t, dir)
}

func TestFileDirectoryMissingAndBadFile(t *testing.T) {
	dir, err := NewFileDirectory(t.TempDir())
	require.NoError(t, err)
	_, err = dir.GetUserByID(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrUserNotFound)

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, directoryFileName), []byte("[]"), 0600))
	_, err = NewFileDirectory(dataDir)
	assert.Error(t, err)

	dataDir = t.TempDir()
	orphan := `{"users": [{"id": "user-1", "domain_id": "dom-x", "name": "ann"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, directoryFileName), []byte(orphan), 0600))
	_, err = NewFileDirectory(dataDir)
	assert.ErrorIs(t, err, ErrDomainNotFound)
}

func TestPostgresDirectory(t *testing.T) {
	pool := pgtest.NewPool(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO idm_domain (id, name) VALUES ('dom-1', 'default'), ('dom-2', 'partners')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO idm_user (id, domain_id, name, email) VALUES
		('user-1', 'dom-1', 'ann', 'ann@example.com'),
		('user-2', 'dom-2', 'ann', NULL)`)
	require.NoError(t, err)

	runDirectoryContract(t, NewPostgresDirectory(pool))
}

func TestNewDirectory(t *testing.T) {
	dir, err := NewDirectory("memory", RepositoryConfig{})
	require.NoError(t, err)
	assert.IsType(t, &InMemDirectory{}, dir)

	_, err = NewDirectory("postgres", RepositoryConfig{})
	assert.Error(t, err)

	_, err = NewDirectory("file", RepositoryConfig{})
	assert.Error(t, err)

	_, err = NewDirectory("mongo", RepositoryConfig{})
	assert.Error(t, err)
}
