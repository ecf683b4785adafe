package database

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	// DriverPostgres selects lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite selects the pure-Go modernc.org/sqlite driver.
	DriverSQLite = "sqlite"

	// SchemaEnsure creates the schema with idempotent DDL on startup.
	SchemaEnsure = "ensure"
	// SchemaMigrate applies versioned migrations with golang-migrate on startup.
	SchemaMigrate = "migrate"
)

// Config holds database connection settings shared across bots.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"POSTGRES_USER"`
	Password       string `yaml:"password" envconfig:"POSTGRES_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	Path           string `yaml:"path" envconfig:"DB_PATH"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	SchemaMode     string `yaml:"schema_mode" envconfig:"DB_SCHEMA_MODE"`
}

// Normalize fills defaults and validates the driver-specific fields.
func (c *Config) Normalize() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	switch c.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Host) == "" {
			return fmt.Errorf("database.host is required for postgres")
		}
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("database.name is required for postgres")
		}
		if c.Port == "" {
			c.Port = "5432"
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, sqlite", c.Driver)
	}

	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
	}
	if c.Driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY under concurrent handlers
		c.MaxConnections = 1
	}

	c.SchemaMode = strings.ToLower(strings.TrimSpace(c.SchemaMode))
	switch c.SchemaMode {
	case "":
		c.SchemaMode = SchemaEnsure
	case SchemaEnsure, SchemaMigrate:
	default:
		return fmt.Errorf("invalid database.schema_mode %q; allowed: ensure, migrate", c.SchemaMode)
	}
	return nil
}

// DSN returns the connection string understood by the sql driver. Postgres
// gets a URL so credentials with spaces or quotes survive.
func (c Config) DSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return c.postgresURL().String()
}

// MigrateURL returns the database URL understood by golang-migrate.
func (c Config) MigrateURL() string {
	if c.Driver == DriverSQLite {
		return "sqlite://" + c.Path
	}
	return c.postgresURL().String()
}

func (c Config) postgresURL() *url.URL {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	return &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: q.Encode(),
	}
}
