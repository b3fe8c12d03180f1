package config

import (
	"fmt"

	dbutils "github.com/tendant/db-utils/db"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `env:"IDM_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"IDM_PG_PORT" env-default:"5432"`
	Database string `env:"IDM_PG_DATABASE" env-default:"idm_db"`
	User     string `env:"IDM_PG_USER" env-default:"idm"`
	Password string `env:"IDM_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"IDM_PG_SCHEMA" env-default:"public"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// ToDbConfig converts the config to a db-utils DbConfig
func (d DatabaseConfig) ToDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

func (d DatabaseConfig) Validate() ValidationErrors {
	errs := CollectErrors(
		RequireNonEmpty("IDM_PG_HOST", d.Host),
		RequireNonEmpty("IDM_PG_DATABASE", d.Database),
		RequireNonEmpty("IDM_PG_USER", d.User),
	)
	if d.Port == 0 {
		errs = append(errs, ValidationError{Field: "IDM_PG_PORT", Message: "port must be between 1 and 65535"})
	}
	return errs
}

// PersistenceConfig selects the storage backend for profiles, devices, identities and consumers.
type PersistenceConfig struct {
	Type    string `env:"PERSISTENCE_TYPE" env-default:"postgres"`
	DataDir string `env:"DATA_DIR" env-default:"./data"`
}

func (p PersistenceConfig) Validate() ValidationErrors {
	return CollectErrors(
		RequireOneOf("PERSISTENCE_TYPE", p.Type, "postgres", "postgresql", "file", "memory", "inmem"),
		WhenSet(p.Type, func() *ValidationError {
			if p.Type != "file" {
				return nil
			}
			return RequireNonEmpty("DATA_DIR", p.DataDir)
		}),
	)
}

// NewPersistenceConfigFromEnv creates a PersistenceConfig from environment variables
func NewPersistenceConfigFromEnv() PersistenceConfig {
	return PersistenceConfig{
		Type:    GetEnvOrDefault("PERSISTENCE_TYPE", "postgres"),
		DataDir: GetEnvOrDefault("DATA_DIR", "./data"),
	}
}
