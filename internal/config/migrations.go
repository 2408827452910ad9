package config

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		id                           TEXT PRIMARY KEY,
		owner_id                     TEXT NOT NULL UNIQUE,
		balance                      NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		pending_balance              NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (pending_balance >= 0),
		currency                     TEXT NOT NULL DEFAULT 'USD',
		auto_withdrawal_enabled      BOOLEAN NOT NULL DEFAULT false,
		auto_withdrawal_schedule     TEXT NOT NULL DEFAULT 'NONE',
		auto_withdrawal_threshold    NUMERIC(20,2) NOT NULL DEFAULT 0,
		default_withdrawal_method_id TEXT,
		created_at                   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at                   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id             TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL UNIQUE,
		sender_id      TEXT NOT NULL,
		receiver_id    TEXT NOT NULL,
		amount         NUMERIC(20,2) NOT NULL,
		fee_amount     NUMERIC(20,2) NOT NULL DEFAULT 0,
		tax_amount     NUMERIC(20,2) NOT NULL DEFAULT 0,
		total_amount   NUMERIC(20,2) NOT NULL,
		status         TEXT NOT NULL,
		due_date       TIMESTAMPTZ,
		paid_at        TIMESTAMPTZ,
		items          JSONB NOT NULL DEFAULT '[]',
		currency       TEXT NOT NULL,
		reference_id   TEXT NOT NULL UNIQUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id           TEXT PRIMARY KEY,
		wallet_id    TEXT NOT NULL REFERENCES wallets(id),
		amount       NUMERIC(20,2) NOT NULL,
		type         TEXT NOT NULL,
		status       TEXT NOT NULL,
		reference_id TEXT NOT NULL UNIQUE,
		description  TEXT NOT NULL DEFAULT '',
		fee_amount   NUMERIC(20,2) NOT NULL DEFAULT 0,
		tax_amount   NUMERIC(20,2) NOT NULL DEFAULT 0,
		invoice_id   TEXT,
		metadata     JSONB,
		cleared_at   TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions (wallet_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_clearing ON transactions (cleared_at) WHERE status = 'PENDING'`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_invoice ON transactions (invoice_id) WHERE invoice_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_sender ON invoices (sender_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_receiver ON invoices (receiver_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS escrow_holds (
		id           TEXT PRIMARY KEY,
		contract_id  TEXT NOT NULL,
		milestone_id TEXT NOT NULL,
		payer_id     TEXT NOT NULL,
		amount       NUMERIC(20,2) NOT NULL CHECK (amount > 0),
		cost_center  TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		release      JSONB,
		requested_by TEXT NOT NULL DEFAULT '',
		approved_by  TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (contract_id, milestone_id)
	)`,
	`CREATE TABLE IF NOT EXISTS withdrawal_methods (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL,
		type               TEXT NOT NULL,
		provider           TEXT NOT NULL DEFAULT '',
		account_number     TEXT NOT NULL,
		account_name       TEXT NOT NULL DEFAULT '',
		is_default         BOOLEAN NOT NULL DEFAULT false,
		is_instant_capable BOOLEAN NOT NULL DEFAULT false,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_withdrawal_methods_default ON withdrawal_methods (user_id) WHERE is_default`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		plan_id           TEXT NOT NULL,
		price             NUMERIC(20,2) NOT NULL,
		status            TEXT NOT NULL,
		next_billing_date TIMESTAMPTZ NOT NULL,
		last_charged_at   TIMESTAMPTZ,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_due ON subscriptions (next_billing_date) WHERE status = 'ACTIVE'`,
	`CREATE TABLE IF NOT EXISTS eor_contracts (
		id                 TEXT PRIMARY KEY,
		client_id          TEXT NOT NULL,
		employee_id        TEXT NOT NULL,
		jurisdiction       TEXT NOT NULL,
		recurring_amount   NUMERIC(20,2) NOT NULL,
		eor_fee_percentage NUMERIC(6,3) NOT NULL,
		pay_cycle          TEXT NOT NULL,
		status             TEXT NOT NULL,
		next_payroll_at    TIMESTAMPTZ NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS benefit_enrollments (
		id           TEXT PRIMARY KEY,
		employee_id  TEXT NOT NULL,
		plan_name    TEXT NOT NULL,
		monthly_cost NUMERIC(20,2) NOT NULL,
		active       BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS tax_settings (
		jurisdiction TEXT PRIMARY KEY,
		rate         NUMERIC(6,3) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payroll_records (
		id           TEXT PRIMARY KEY,
		contract_id  TEXT NOT NULL REFERENCES eor_contracts(id),
		period       TEXT NOT NULL,
		breakdown    JSONB NOT NULL,
		status       TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		invoice_id   TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (contract_id, period)
	)`,
	`CREATE TABLE IF NOT EXISTS settlement_sagas (
		id           TEXT PRIMARY KEY,
		reference_id TEXT NOT NULL UNIQUE,
		kind         TEXT NOT NULL,
		state        TEXT NOT NULL,
		plan         JSONB NOT NULL,
		steps        JSONB NOT NULL DEFAULT '[]',
		invoice_id   TEXT,
		error        TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sagas_running ON settlement_sagas (updated_at) WHERE state = 'RUNNING'`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id           TEXT PRIMARY KEY,
		service      TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		actor_id     TEXT NOT NULL,
		reference_id TEXT NOT NULL DEFAULT '',
		event        JSONB NOT NULL,
		checksum     TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS job_locks (
		job        TEXT PRIMARY KEY,
		owner      TEXT NOT NULL DEFAULT '',
		locked_at  TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
}

// RunMigrations creates tables and indexes idempotently.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	logger.Info("migrations applied", zap.Int("statements", len(schema)))
	return nil
}
