package store

// Money and rates are TEXT in SQLite so no precision is lost. Statements are
// separated by semicolons and applied one at a time.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS clients (
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	national_id TEXT NOT NULL UNIQUE,
	mobile TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	neighborhood TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT 1,
	registered_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS routes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	zone TEXT NOT NULL DEFAULT '',
	neighborhoods TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS collectors (
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	document_number TEXT NOT NULL UNIQUE,
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT 1,
	commission_percent TEXT NOT NULL DEFAULT '0',
	daily_goal TEXT NOT NULL DEFAULT '0',
	hired_on DATE NOT NULL
);
CREATE TABLE IF NOT EXISTS collector_routes (
	collector_id TEXT NOT NULL REFERENCES collectors(id),
	route_id TEXT NOT NULL REFERENCES routes(id),
	PRIMARY KEY (collector_id, route_id)
);
CREATE TABLE IF NOT EXISTS loans (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL REFERENCES clients(id),
	collector_id TEXT REFERENCES collectors(id),
	principal TEXT NOT NULL,
	monthly_rate TEXT NOT NULL,
	cadence TEXT NOT NULL,
	installment_count INTEGER NOT NULL,
	installment_value TEXT NOT NULL,
	total_payable TEXT NOT NULL,
	total_interest TEXT NOT NULL,
	elapsed_months TEXT NOT NULL DEFAULT '0',
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	requested_at DATETIME NOT NULL,
	approved_at DATETIME,
	disbursed_at DATETIME,
	reference_due_date DATE,
	days_past_due INTEGER NOT NULL DEFAULT 0,
	mora_state TEXT NOT NULL DEFAULT 'CURRENT',
	penalty_interest TEXT NOT NULL DEFAULT '0',
	daily_penalty_rate TEXT NOT NULL DEFAULT '2.00',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);
CREATE TABLE IF NOT EXISTS installments (
	id TEXT PRIMARY KEY,
	loan_id TEXT NOT NULL REFERENCES loans(id),
	number INTEGER NOT NULL,
	due_date DATE NOT NULL,
	amount TEXT NOT NULL,
	amount_paid TEXT NOT NULL DEFAULT '0',
	state TEXT NOT NULL,
	paid_on DATE,
	notes TEXT NOT NULL DEFAULT '',
	UNIQUE (loan_id, number)
);
CREATE INDEX IF NOT EXISTS idx_installments_due ON installments(due_date, state);
CREATE TABLE IF NOT EXISTS payments (
	id TEXT PRIMARY KEY,
	loan_id TEXT NOT NULL REFERENCES loans(id),
	installment_id TEXT REFERENCES installments(id) ON DELETE SET NULL,
	amount TEXT NOT NULL,
	paid_at DATETIME NOT NULL,
	installment_number INTEGER NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_payments_loan ON payments(loan_id);
CREATE TABLE IF NOT EXISTS collection_tasks (
	id TEXT PRIMARY KEY,
	collector_id TEXT NOT NULL REFERENCES collectors(id),
	installment_id TEXT NOT NULL REFERENCES installments(id) ON DELETE CASCADE,
	assigned_on DATE NOT NULL,
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	visit_order INTEGER NOT NULL DEFAULT 0,
	visited_at DATETIME,
	amount_collected TEXT,
	notes TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	rescheduled_to DATE,
	latitude REAL,
	longitude REAL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_installment_date ON collection_tasks(installment_id, assigned_on);
CREATE INDEX IF NOT EXISTS idx_tasks_collector_date ON collection_tasks(collector_id, assigned_on);
CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	id TEXT PRIMARY KEY,
	as_of DATE NOT NULL UNIQUE,
	active_loans INTEGER NOT NULL,
	total_exposure TEXT NOT NULL,
	current_exposure TEXT NOT NULL,
	overdue_exposure TEXT NOT NULL,
	overdue_percent TEXT NOT NULL,
	current_loans INTEGER NOT NULL,
	early_arrears_loans INTEGER NOT NULL,
	high_arrears_loans INTEGER NOT NULL,
	critical_arrears_loans INTEGER NOT NULL,
	early_arrears_exposure TEXT NOT NULL,
	high_arrears_exposure TEXT NOT NULL,
	critical_arrears_exposure TEXT NOT NULL,
	penalty_interest_total TEXT NOT NULL,
	average_days_past_due TEXT NOT NULL,
	collected_today TEXT NOT NULL,
	daily_goal TEXT NOT NULL,
	goal_attainment_percent TEXT NOT NULL,
	created_at DATETIME NOT NULL
)
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS clients (
	id UUID PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	national_id TEXT NOT NULL UNIQUE,
	mobile TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	neighborhood TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	registered_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS routes (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	zone TEXT NOT NULL DEFAULT '',
	neighborhoods TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS collectors (
	id UUID PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	document_number TEXT NOT NULL UNIQUE,
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	commission_percent NUMERIC(5,2) NOT NULL DEFAULT 0,
	daily_goal NUMERIC(14,2) NOT NULL DEFAULT 0,
	hired_on DATE NOT NULL
);
CREATE TABLE IF NOT EXISTS collector_routes (
	collector_id UUID NOT NULL REFERENCES collectors(id),
	route_id UUID NOT NULL REFERENCES routes(id),
	PRIMARY KEY (collector_id, route_id)
);
CREATE TABLE IF NOT EXISTS loans (
	id UUID PRIMARY KEY,
	client_id UUID NOT NULL REFERENCES clients(id),
	collector_id UUID REFERENCES collectors(id),
	principal NUMERIC(14,2) NOT NULL,
	monthly_rate NUMERIC(7,4) NOT NULL,
	cadence TEXT NOT NULL,
	installment_count INTEGER NOT NULL,
	installment_value NUMERIC(14,2) NOT NULL,
	total_payable NUMERIC(14,2) NOT NULL,
	total_interest NUMERIC(14,2) NOT NULL,
	elapsed_months NUMERIC(20,16) NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	requested_at TIMESTAMPTZ NOT NULL,
	approved_at TIMESTAMPTZ,
	disbursed_at TIMESTAMPTZ,
	reference_due_date DATE,
	days_past_due INTEGER NOT NULL DEFAULT 0,
	mora_state TEXT NOT NULL DEFAULT 'CURRENT',
	penalty_interest NUMERIC(14,2) NOT NULL DEFAULT 0,
	daily_penalty_rate NUMERIC(7,4) NOT NULL DEFAULT 2.00,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);
CREATE TABLE IF NOT EXISTS installments (
	id UUID PRIMARY KEY,
	loan_id UUID NOT NULL REFERENCES loans(id),
	number INTEGER NOT NULL,
	due_date DATE NOT NULL,
	amount NUMERIC(14,2) NOT NULL,
	amount_paid NUMERIC(14,2) NOT NULL DEFAULT 0,
	state TEXT NOT NULL,
	paid_on DATE,
	notes TEXT NOT NULL DEFAULT '',
	UNIQUE (loan_id, number)
);
CREATE INDEX IF NOT EXISTS idx_installments_due ON installments(due_date, state);
CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	loan_id UUID NOT NULL REFERENCES loans(id),
	installment_id UUID REFERENCES installments(id) ON DELETE SET NULL,
	amount NUMERIC(14,2) NOT NULL,
	paid_at TIMESTAMPTZ NOT NULL,
	installment_number INTEGER NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_payments_loan ON payments(loan_id);
CREATE TABLE IF NOT EXISTS collection_tasks (
	id UUID PRIMARY KEY,
	collector_id UUID NOT NULL REFERENCES collectors(id),
	installment_id UUID NOT NULL REFERENCES installments(id) ON DELETE CASCADE,
	assigned_on DATE NOT NULL,
	status TEXT NOT NULL,
	priority TEXT NOT NULL,
	visit_order INTEGER NOT NULL DEFAULT 0,
	visited_at TIMESTAMPTZ,
	amount_collected NUMERIC(14,2),
	notes TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	rescheduled_to DATE,
	latitude DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_installment_date ON collection_tasks(installment_id, assigned_on);
CREATE INDEX IF NOT EXISTS idx_tasks_collector_date ON collection_tasks(collector_id, assigned_on);
CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	id UUID PRIMARY KEY,
	as_of DATE NOT NULL UNIQUE,
	active_loans INTEGER NOT NULL,
	total_exposure NUMERIC(16,2) NOT NULL,
	current_exposure NUMERIC(16,2) NOT NULL,
	overdue_exposure NUMERIC(16,2) NOT NULL,
	overdue_percent NUMERIC(7,2) NOT NULL,
	current_loans INTEGER NOT NULL,
	early_arrears_loans INTEGER NOT NULL,
	high_arrears_loans INTEGER NOT NULL,
	critical_arrears_loans INTEGER NOT NULL,
	early_arrears_exposure NUMERIC(16,2) NOT NULL,
	high_arrears_exposure NUMERIC(16,2) NOT NULL,
	critical_arrears_exposure NUMERIC(16,2) NOT NULL,
	penalty_interest_total NUMERIC(16,2) NOT NULL,
	average_days_past_due NUMERIC(10,2) NOT NULL,
	collected_today NUMERIC(16,2) NOT NULL,
	daily_goal NUMERIC(16,2) NOT NULL,
	goal_attainment_percent NUMERIC(10,2) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)
`
