package db

var schema = `
CREATE TABLE IF NOT EXISTS tenants (
	tenant_id UUID PRIMARY KEY,
	slug VARCHAR(64) NOT NULL UNIQUE,
	name VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS artists (
	artist_id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants (tenant_id),
	slug VARCHAR(128) NOT NULL,
	name VARCHAR(255) NOT NULL,
	bio TEXT NOT NULL DEFAULT '',
	genres TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, slug)
);

CREATE TABLE IF NOT EXISTS venues (
	venue_id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants (tenant_id),
	name VARCHAR(255) NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	capacity INT NOT NULL CHECK (capacity > 0),
	map JSONB NOT NULL DEFAULT '{"sections": []}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS events (
	event_id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants (tenant_id),
	venue_id UUID NOT NULL REFERENCES venues (venue_id),
	slug VARCHAR(128) NOT NULL,
	title VARCHAR(255) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at TIMESTAMPTZ NOT NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'draft',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, slug)
);

CREATE TABLE IF NOT EXISTS event_artists (
	event_id UUID NOT NULL REFERENCES events (event_id),
	artist_id UUID NOT NULL REFERENCES artists (artist_id),
	billing_order INT NOT NULL,
	PRIMARY KEY (event_id, artist_id)
);

CREATE TABLE IF NOT EXISTS ticket_types (
	ticket_type_id UUID PRIMARY KEY,
	event_id UUID NOT NULL REFERENCES events (event_id),
	tenant_id UUID NOT NULL REFERENCES tenants (tenant_id),
	name VARCHAR(255) NOT NULL,
	price_amount NUMERIC(10, 2) NOT NULL CHECK (price_amount >= 0),
	price_currency CHAR(3) NOT NULL,
	capacity INT NOT NULL CHECK (capacity > 0),
	member_only BOOLEAN NOT NULL DEFAULT false,
	credit_eligible BOOLEAN NOT NULL DEFAULT false,
	sales_start_at TIMESTAMPTZ,
	sales_end_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS orders (
	order_id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants (tenant_id),
	customer_email VARCHAR(255) NOT NULL,
	status VARCHAR(16) NOT NULL,
	total_amount NUMERIC(10, 2) NOT NULL,
	total_currency CHAR(3) NOT NULL,
	credits_used INT NOT NULL DEFAULT 0,
	referral_code VARCHAR(16) NOT NULL DEFAULT '',
	idempotency_key VARCHAR(255) NOT NULL,
	stripe_session_id VARCHAR(255) NOT NULL DEFAULT '',
	checkout_url TEXT NOT NULL DEFAULT '',
	stripe_payment_intent VARCHAR(255) NOT NULL DEFAULT '',
	reserved_until TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	paid_at TIMESTAMPTZ,
	refunded_at TIMESTAMPTZ,
	UNIQUE (tenant_id, idempotency_key)
);

CREATE INDEX IF NOT EXISTS orders_pending_idx ON orders (reserved_until) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS order_items (
	order_id UUID NOT NULL REFERENCES orders (order_id),
	ticket_type_id UUID NOT NULL REFERENCES ticket_types (ticket_type_id),
	quantity INT NOT NULL CHECK (quantity > 0),
	unit_amount NUMERIC(10, 2) NOT NULL,
	unit_currency CHAR(3) NOT NULL,
	credits_applied INT NOT NULL DEFAULT 0,
	PRIMARY KEY (order_id, ticket_type_id)
);

CREATE TABLE IF NOT EXISTS tickets (
	ticket_id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants (tenant_id),
	order_id UUID NOT NULL REFERENCES orders (order_id),
	event_id UUID NOT NULL REFERENCES events (event_id),
	ticket_type_id UUID NOT NULL REFERENCES ticket_types (ticket_type_id),
	seq INT NOT NULL,
	holder_email VARCHAR(255) NOT NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'valid',
	qr_payload TEXT NOT NULL,
	issued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	checked_in_at TIMESTAMPTZ,
	checked_in_by VARCHAR(255),
	UNIQUE (order_id, ticket_type_id, seq)
);

CREATE TABLE IF NOT EXISTS scan_log (
	scan_id BIGSERIAL PRIMARY KEY,
	tenant_id UUID NOT NULL,
	event_id UUID NOT NULL,
	ticket_id UUID,
	device_id VARCHAR(255) NOT NULL,
	result VARCHAR(32) NOT NULL,
	scanned_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS membership_tiers (
	tier_id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants (tenant_id),
	name VARCHAR(255) NOT NULL,
	stripe_price_id VARCHAR(255) NOT NULL,
	monthly_credits INT NOT NULL CHECK (monthly_credits >= 0),
	discount_percent INT NOT NULL CHECK (discount_percent BETWEEN 0 AND 100),
	active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS memberships (
	membership_id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants (tenant_id),
	tier_id UUID NOT NULL REFERENCES membership_tiers (tier_id),
	customer_email VARCHAR(255) NOT NULL,
	status VARCHAR(16) NOT NULL,
	stripe_subscription_id VARCHAR(255) UNIQUE,
	stripe_customer_id VARCHAR(255),
	current_period_end TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS credit_ledger (
	entry_id BIGSERIAL PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants (tenant_id),
	customer_email VARCHAR(255) NOT NULL,
	delta INT NOT NULL,
	reason VARCHAR(32) NOT NULL,
	reference VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, customer_email, reason, reference)
);

CREATE TABLE IF NOT EXISTS referral_codes (
	code VARCHAR(16) PRIMARY KEY,
	tenant_id UUID NOT NULL REFERENCES tenants (tenant_id),
	owner_email VARCHAR(255) NOT NULL,
	reward_credits INT NOT NULL DEFAULT 1,
	max_uses INT,
	uses INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS referral_conversions (
	order_id UUID PRIMARY KEY REFERENCES orders (order_id),
	code VARCHAR(16) NOT NULL REFERENCES referral_codes (code),
	tenant_id UUID NOT NULL,
	customer_email VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processed_webhook_events (
	event_id VARCHAR(255) PRIMARY KEY,
	event_type VARCHAR(255) NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS data_lake_events (
	event_id VARCHAR(255) PRIMARY KEY,
	published_at TIMESTAMPTZ NOT NULL,
	event_name VARCHAR(255) NOT NULL,
	event_payload JSONB NOT NULL
);
`
