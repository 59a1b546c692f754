package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/spa-booking/config"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// migrations are idempotent. Unique constraints back the exactly-once
// guarantees of the repositories, so they must not be dropped.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		id VARCHAR(36) PRIMARY KEY,
		customer_id VARCHAR(64) NOT NULL,
		customer_name VARCHAR(255) NOT NULL,
		customer_phone VARCHAR(32) NOT NULL DEFAULT '',
		provider_id VARCHAR(64) NOT NULL,
		provider_type VARCHAR(16) NOT NULL,
		provider_tier VARCHAR(16) NOT NULL DEFAULT 'pro',
		service_type VARCHAR(100) NOT NULL DEFAULT '',
		service_duration INTEGER NOT NULL,
		price NUMERIC(14, 2) NOT NULL,
		discount_code VARCHAR(32) NOT NULL DEFAULT '',
		discount_percentage INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		decline_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		response_deadline TIMESTAMPTZ NOT NULL,
		responded_at TIMESTAMPTZ,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		payment_confirmed_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS chat_rooms (
		id VARCHAR(36) PRIMARY KEY,
		booking_id VARCHAR(36) NOT NULL UNIQUE REFERENCES bookings(id),
		customer_id VARCHAR(64) NOT NULL,
		provider_id VARCHAR(64) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
		id VARCHAR(36) PRIMARY KEY,
		room_id VARCHAR(36) NOT NULL REFERENCES chat_rooms(id),
		sender_id VARCHAR(64) NOT NULL,
		sender_type VARCHAR(16) NOT NULL,
		content TEXT NOT NULL,
		is_system_message BOOLEAN NOT NULL DEFAULT FALSE,
		dedup_key VARCHAR(128),
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS chat_violations (
		id VARCHAR(36) PRIMARY KEY,
		room_id VARCHAR(36) NOT NULL,
		sender_id VARCHAR(64) NOT NULL,
		violation_types TEXT[] NOT NULL,
		sanitized_content TEXT NOT NULL,
		violation_number INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS accounts (
		user_id VARCHAR(64) PRIMARY KEY,
		telegram_id VARCHAR(100) NOT NULL DEFAULT '',
		violation_count INTEGER NOT NULL DEFAULT 0,
		restricted BOOLEAN NOT NULL DEFAULT FALSE,
		restriction_reason VARCHAR(64) NOT NULL DEFAULT '',
		restricted_at TIMESTAMPTZ,
		rating_sum INTEGER NOT NULL DEFAULT 0,
		review_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS commission_records (
		booking_id VARCHAR(36) PRIMARY KEY REFERENCES bookings(id),
		provider_id VARCHAR(64) NOT NULL,
		commission_rate NUMERIC(5, 4) NOT NULL,
		amount_due NUMERIC(14, 2) NOT NULL,
		reactivation_fee NUMERIC(14, 2) NOT NULL DEFAULT 0,
		completed_at TIMESTAMPTZ NOT NULL,
		due_at TIMESTAMPTZ NOT NULL,
		state VARCHAR(16) NOT NULL DEFAULT 'pending',
		reminder_stage VARCHAR(16) NOT NULL DEFAULT 'none',
		proof_url TEXT NOT NULL DEFAULT '',
		paid_at TIMESTAMPTZ,
		overdue_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS reviews (
		id VARCHAR(36) PRIMARY KEY,
		booking_id VARCHAR(36) NOT NULL UNIQUE REFERENCES bookings(id),
		customer_id VARCHAR(64) NOT NULL,
		provider_id VARCHAR(64) NOT NULL,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		text TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS review_links (
		token VARCHAR(64) PRIMARY KEY,
		booking_id VARCHAR(36) NOT NULL UNIQUE REFERENCES bookings(id),
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS discount_codes (
		code VARCHAR(32) PRIMARY KEY,
		review_id VARCHAR(36) NOT NULL UNIQUE REFERENCES reviews(id),
		provider_id VARCHAR(64) NOT NULL,
		customer_id VARCHAR(64) NOT NULL,
		percentage INTEGER NOT NULL,
		valid_until TIMESTAMPTZ NOT NULL,
		used BOOLEAN NOT NULL DEFAULT FALSE,
		used_booking_id VARCHAR(36) NOT NULL DEFAULT '',
		used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		type VARCHAR(32) NOT NULL,
		title VARCHAR(255) NOT NULL,
		message TEXT NOT NULL,
		booking_id VARCHAR(36) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,

	// Indexes
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_messages_dedup ON chat_messages(dedup_key) WHERE dedup_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages(room_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_provider ON bookings(provider_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id, created_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_pair ON bookings(customer_id, provider_id)
		WHERE status IN ('pending', 'accepted', 'in_progress')`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_pending_deadline ON bookings(response_deadline) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS idx_commission_state ON commission_records(state, due_at)`,
	`CREATE INDEX IF NOT EXISTS idx_commission_provider ON commission_records(provider_id, state)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at)`,
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", i, err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}
