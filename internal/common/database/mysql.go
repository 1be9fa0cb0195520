// internal/common/database/mysql.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"media-reconciler/internal/common/config"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLClient wraps the SQL database connection to the subscription ledger.
type MySQLClient struct {
	DB *sql.DB
}

// NewMySQL creates a new MySQL/MariaDB client.
func NewMySQL(cfg config.DatabaseConfig) (*MySQLClient, error) {
	db, err := sql.Open("mysql", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &MySQLClient{DB: db}, nil
}

// Ping tests the database connection.
func (c *MySQLClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// ValidateSchema checks the ledger table exists. Connectivity and auth
// failures surface through the query error itself.
func (c *MySQLClient) ValidateSchema(ctx context.Context, database, table string) error {
	var name string
	err := c.DB.QueryRowContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`,
		database, table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return fmt.Errorf("table %s does not exist in database %s", table, database)
	}
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *MySQLClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// GetDB returns the underlying *sql.DB.
func (c *MySQLClient) GetDB() *sql.DB {
	return c.DB
}
