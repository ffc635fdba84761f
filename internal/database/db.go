package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// InitSchema creates the spots, transactions and users tables when they
// do not exist yet.  The sweep queries rely on the composite status +
// timestamp indexes.
func InitSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS spots (
            id VARCHAR(36) PRIMARY KEY,
            queue_name VARCHAR(255) NOT NULL,
            seller_id VARCHAR(64) NOT NULL,
            status VARCHAR(16) NOT NULL DEFAULT 'available',
            progress INT NOT NULL DEFAULT 0,
            seller_price INT NOT NULL,
            buyer_price DECIMAL(10,2) NOT NULL,
            reserved_at DATETIME NULL,
            interested_buyer_ids JSON NOT NULL,
            issue_reporter_ids JSON NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
            INDEX idx_status_reserved_at (status, reserved_at),
            INDEX idx_seller_status (seller_id, status)
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS transactions (
            id VARCHAR(36) PRIMARY KEY,
            spot_id VARCHAR(36) NOT NULL,
            queue_name VARCHAR(255) NOT NULL,
            seller_id VARCHAR(64) NOT NULL,
            buyer_id VARCHAR(64) NOT NULL,
            status VARCHAR(32) NOT NULL DEFAULT 'pending',
            payout_status VARCHAR(32) NOT NULL DEFAULT '',
            seller_price INT NOT NULL,
            buyer_price DECIMAL(10,2) NOT NULL,
            payment_provider VARCHAR(16) NOT NULL,
            payment_intent_id VARCHAR(255) NOT NULL DEFAULT '',
            capture_id VARCHAR(255) NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            booked_at DATETIME NULL,
            INDEX idx_status_booked_at (status, booked_at),
            INDEX idx_payout_booked_at (payout_status, booked_at),
            INDEX idx_spot_id (spot_id)
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS users (
            id VARCHAR(64) PRIMARY KEY,
            email VARCHAR(255) NOT NULL DEFAULT '',
            paypal_email VARCHAR(255) NOT NULL DEFAULT '',
            stripe_customer_id VARCHAR(255) NOT NULL DEFAULT '',
            messaging_token VARCHAR(512) NOT NULL DEFAULT '',
            disabled BOOLEAN NOT NULL DEFAULT FALSE,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
