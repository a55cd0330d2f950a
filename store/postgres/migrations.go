package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the credits store.
var Migrations = migrate.NewGroup("credits")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_credits_entries",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_entries (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL DEFAULT '',
    amount          BIGINT NOT NULL DEFAULT 0,
    kind            TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    expires_at      TIMESTAMPTZ,
    coupon_id       TEXT NOT NULL DEFAULT '',
    source_entry_id TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credits_entries_user ON credits_entries (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_credits_entries_expiry ON credits_entries (expires_at) WHERE expires_at IS NOT NULL AND amount > 0;
CREATE UNIQUE INDEX IF NOT EXISTS idx_credits_entries_offset ON credits_entries (source_entry_id) WHERE source_entry_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_entries`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_balances",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_balances (
    user_id           TEXT PRIMARY KEY,
    total_credits     BIGINT NOT NULL DEFAULT 0,
    available_credits BIGINT NOT NULL DEFAULT 0,
    used_credits      BIGINT NOT NULL DEFAULT 0,
    expired_credits   BIGINT NOT NULL DEFAULT 0,
    version           BIGINT NOT NULL DEFAULT 0,
    last_updated      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_coupons",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_coupons (
    id                    TEXT PRIMARY KEY,
    code                  TEXT NOT NULL DEFAULT '',
    name                  TEXT NOT NULL DEFAULT '',
    type                  TEXT NOT NULL DEFAULT '',
    percentage            INT NOT NULL DEFAULT 0,
    amount_cents          BIGINT NOT NULL DEFAULT 0,
    amount_currency       TEXT NOT NULL DEFAULT '',
    credits               BIGINT NOT NULL DEFAULT 0,
    min_amount_cents      BIGINT,
    min_amount_currency   TEXT NOT NULL DEFAULT '',
    max_discount_cents    BIGINT,
    max_discount_currency TEXT NOT NULL DEFAULT '',
    usage_limit           INT NOT NULL DEFAULT 0,
    usage_count           INT NOT NULL DEFAULT 0,
    user_limit            INT NOT NULL DEFAULT 0,
    valid_from            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    valid_until           TIMESTAMPTZ,
    active                BOOLEAN NOT NULL DEFAULT TRUE,
    metadata              JSONB NOT NULL DEFAULT '{}',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_credits_coupons_code ON credits_coupons (code);
CREATE INDEX IF NOT EXISTS idx_credits_coupons_active ON credits_coupons (active, valid_from, valid_until);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_coupons`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_redemptions",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_redemptions (
    id                TEXT PRIMARY KEY,
    coupon_id         TEXT NOT NULL DEFAULT '',
    user_id           TEXT NOT NULL DEFAULT '',
    order_id          TEXT NOT NULL DEFAULT '',
    discount_cents    BIGINT NOT NULL DEFAULT 0,
    discount_currency TEXT NOT NULL DEFAULT '',
    used_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credits_redemptions_coupon ON credits_redemptions (coupon_id, used_at);
CREATE INDEX IF NOT EXISTS idx_credits_redemptions_user ON credits_redemptions (coupon_id, user_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_redemptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_usage_records",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_usage_records (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL DEFAULT '',
    subscription_id TEXT NOT NULL DEFAULT '',
    resource_type   TEXT NOT NULL DEFAULT '',
    amount          BIGINT NOT NULL DEFAULT 0,
    unit            TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    period_start    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    period_end      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credits_usage_sub ON credits_usage_records (subscription_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_credits_usage_type ON credits_usage_records (subscription_id, resource_type, recorded_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_usage_records`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_subscriptions",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_subscriptions (
    id                    TEXT PRIMARY KEY,
    user_id               TEXT NOT NULL DEFAULT '',
    status                TEXT NOT NULL DEFAULT 'active',
    usage_limit           BIGINT NOT NULL DEFAULT 0,
    current_usage         BIGINT NOT NULL DEFAULT 0,
    overage               BIGINT NOT NULL DEFAULT 0,
    overage_rate_cents    BIGINT,
    overage_rate_currency TEXT NOT NULL DEFAULT '',
    period_start          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    period_end            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    canceled_at           TIMESTAMPTZ,
    metadata              JSONB NOT NULL DEFAULT '{}',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credits_subs_user ON credits_subscriptions (user_id, status);
CREATE INDEX IF NOT EXISTS idx_credits_subs_due ON credits_subscriptions (status, period_end);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_subscriptions`)
				return err
			},
		},
	)
}
