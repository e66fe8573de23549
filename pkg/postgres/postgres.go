// Package postgres opens the gorm connection used by the persistent credential
// store.
package postgres

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/milan604/apiclient/pkg/logger"
)

type Config struct {
	Host     string
	Port     string
	Name     string
	Username string
	Password string
	SSLMode  string
}

// DSN renders the config as a postgres URL.
func (c Config) DSN() string {
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

type DB struct {
	Client *gorm.DB
	SQL    *sql.DB
	DSN    string
}

// Open connects to dsn and pings it. Both URL and key=value DSNs are accepted.
func Open(dsn string, log logger.LogManager) (*DB, error) {
	client, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	sqlDB, err := client.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	logger.OrNop(log).Infow("postgres connected", "dsn", MaskDSN(dsn))
	return &DB{Client: client, SQL: sqlDB, DSN: dsn}, nil
}

// New connects using discrete connection settings.
func New(cfg Config, log logger.LogManager) (*DB, error) {
	return Open(cfg.DSN(), log)
}

func (db *DB) Close() error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

// MaskDSN hides the password in a URL or key=value DSN.
func MaskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	}
	parts := strings.Fields(dsn)
	for i, p := range parts {
		if strings.HasPrefix(p, "password=") {
			parts[i] = "password=xxxxx"
		}
	}
	return strings.Join(parts, " ")
}
