// Package testsupport opens in-memory databases carrying the checkout schema.
package testsupport

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// Schema mirrors the postgres migrations in a dialect sqlite accepts.
var Schema = []string{
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		customer_identity_id TEXT,
		status TEXT NOT NULL,
		currency TEXT NOT NULL,
		total_cents BIGINT NOT NULL,
		fee_policy_version TEXT NOT NULL,
		pricing_snapshot TEXT NOT NULL,
		pricing_snapshot_hash TEXT,
		idempotency_key TEXT NOT NULL,
		processor_fees_status TEXT NOT NULL,
		processor_fees_actual BIGINT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payments_idempotency_key ON payments (idempotency_key)`,
	`CREATE TABLE ledger_entries (
		id BIGINT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		causation_id TEXT NOT NULL,
		correlation_id TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_ledger_entries_causation ON ledger_entries (causation_id)`,
	`CREATE TABLE event_log (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		organization_id BIGINT NOT NULL,
		idempotency_key TEXT NOT NULL,
		correlation_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_event_log_idempotency_key ON event_log (idempotency_key)`,
	`CREATE TABLE outbox_events (
		id BIGINT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		dedupe_key TEXT NOT NULL,
		correlation_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		available_at DATETIME NOT NULL,
		published_at DATETIME,
		parked_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_outbox_events_dedupe_key ON outbox_events (dedupe_key)`,
	`CREATE TABLE organizations (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		org_type TEXT NOT NULL DEFAULT 'STANDARD',
		fee_mode TEXT,
		platform_fee_bps BIGINT,
		platform_fee_fixed_cents BIGINT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE bookings (
		id BIGINT PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		user_id TEXT,
		price BIGINT NOT NULL,
		currency TEXT NOT NULL
	)`,
	`CREATE TABLE stores (
		id BIGINT PRIMARY KEY,
		owner_organization_id BIGINT,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE store_orders (
		id BIGINT PRIMARY KEY,
		store_id BIGINT NOT NULL,
		user_id TEXT,
		currency TEXT NOT NULL,
		subtotal_cents BIGINT NOT NULL,
		shipping_cents BIGINT,
		discount_cents BIGINT
	)`,
	`CREATE TABLE store_order_lines (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		quantity BIGINT NOT NULL,
		unit_price_cents BIGINT NOT NULL
	)`,
	`CREATE TABLE ticket_orders (
		id TEXT PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		event_id BIGINT,
		buyer_identity_id TEXT,
		currency TEXT NOT NULL
	)`,
	`CREATE TABLE ticket_order_lines (
		id BIGINT PRIMARY KEY,
		ticket_order_id TEXT NOT NULL,
		ticket_type_id BIGINT NOT NULL,
		qty BIGINT NOT NULL,
		unit_amount BIGINT NOT NULL,
		total_amount BIGINT NOT NULL
	)`,
	`CREATE TABLE tournament_registrations (
		id TEXT PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		event_id BIGINT,
		buyer_identity_id TEXT,
		currency TEXT NOT NULL
	)`,
	`CREATE TABLE tournament_registration_lines (
		id BIGINT PRIMARY KEY,
		registration_id TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		qty BIGINT NOT NULL,
		unit_amount BIGINT NOT NULL,
		total_amount BIGINT NOT NULL
	)`,
	`CREATE TABLE event_access_policies (
		id BIGINT PRIMARY KEY,
		event_id BIGINT NOT NULL,
		policy_version INT NOT NULL,
		mode TEXT NOT NULL,
		guest_checkout_allowed BOOLEAN NOT NULL DEFAULT FALSE,
		invite_token_allowed BOOLEAN NOT NULL DEFAULT FALSE,
		invite_identity_match TEXT NOT NULL DEFAULT 'EMAIL',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE email_identities (
		id TEXT PRIMARY KEY,
		email_normalized TEXT NOT NULL,
		user_id TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE invite_tokens (
		id BIGINT PRIMARY KEY,
		event_id BIGINT NOT NULL,
		token_hash TEXT NOT NULL,
		email_normalized TEXT,
		ticket_type_id BIGINT,
		expires_at DATETIME NOT NULL,
		used_at DATETIME,
		used_by_identity_id TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX ux_invite_tokens_hash ON invite_tokens (token_hash)`,
}

// OpenDB returns a fresh in-memory database with the schema applied. The pool
// is capped at one connection so transactions serialize.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// NewNode returns a snowflake node for test ids.
func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()

	node, err := snowflake.NewNode(int64(seq.Add(1) % 1024))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

// Exec runs seed statements and fails the test on the first error.
func Exec(t testing.TB, db *gorm.DB, stmt string, args ...any) {
	t.Helper()

	if err := db.Exec(stmt, args...).Error; err != nil {
		t.Fatalf("exec %q: %v", stmt, err)
	}
}

// Count returns the row count of a query.
func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()

	var n int64
	if err := db.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}
