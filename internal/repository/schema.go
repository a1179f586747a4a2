package repository

// Schema is the DDL for the service's tables. Applied by the seeder and by
// the integration tests; production migrations run the same statements.
const Schema = `
CREATE TABLE IF NOT EXISTS worlds (
	id UUID PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'agent',
	world_id UUID REFERENCES worlds(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dossiers (
	id UUID PRIMARY KEY,
	world_id UUID NOT NULL REFERENCES worlds(id),
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	owner_id UUID REFERENCES users(id),
	tags TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS client_infos (
	id UUID PRIMARY KEY,
	dossier_id UUID NOT NULL UNIQUE REFERENCES dossiers(id),
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	email TEXT,
	phone TEXT,
	address TEXT,
	birth_date DATE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attachments (
	id UUID PRIMARY KEY,
	dossier_id UUID NOT NULL REFERENCES dossiers(id),
	file_name TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
	size_bytes BIGINT NOT NULL DEFAULT 0,
	storage_key TEXT NOT NULL,
	uploaded_by UUID REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS appointments (
	id UUID PRIMARY KEY,
	dossier_id UUID NOT NULL REFERENCES dossiers(id),
	user_id UUID REFERENCES users(id),
	title TEXT NOT NULL,
	scheduled_at TIMESTAMPTZ NOT NULL,
	location TEXT,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS comments (
	id UUID PRIMARY KEY,
	dossier_id UUID NOT NULL REFERENCES dossiers(id),
	author_id UUID REFERENCES users(id),
	body TEXT NOT NULL,
	is_system BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notifications (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	dossier_id UUID REFERENCES dossiers(id),
	read BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tasks (
	id UUID PRIMARY KEY,
	world_id UUID NOT NULL REFERENCES worlds(id),
	dossier_id UUID REFERENCES dossiers(id),
	assignee_id UUID NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_date TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'open',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_templates (
	id UUID PRIMARY KEY,
	world_id UUID NOT NULL REFERENCES worlds(id),
	name TEXT NOT NULL,
	version INT NOT NULL DEFAULT 1,
	is_active BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS workflow_templates_one_active
	ON workflow_templates (world_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS workflow_steps (
	id UUID PRIMARY KEY,
	template_id UUID NOT NULL REFERENCES workflow_templates(id),
	name TEXT NOT NULL,
	step_number INT NOT NULL,
	requires_decision BOOLEAN NOT NULL DEFAULT false,
	next_step_id UUID,
	decision_yes_next_step_id UUID,
	decision_no_next_step_id UUID,
	parallel_steps TEXT[] NOT NULL DEFAULT '{}',
	auto_actions JSONB NOT NULL DEFAULT '[]',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (template_id, step_number)
);

CREATE TABLE IF NOT EXISTS workflow_progress (
	id UUID PRIMARY KEY,
	dossier_id UUID NOT NULL REFERENCES dossiers(id),
	step_id UUID NOT NULL REFERENCES workflow_steps(id),
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	completed_by UUID,
	decision BOOLEAN,
	notes TEXT,
	form_data JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (dossier_id, step_id)
);

CREATE TABLE IF NOT EXISTS workflow_history (
	id UUID PRIMARY KEY,
	dossier_id UUID NOT NULL REFERENCES dossiers(id),
	step_id UUID NOT NULL REFERENCES workflow_steps(id),
	next_step_id UUID,
	decision BOOLEAN,
	actor_id UUID,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_rollbacks (
	id UUID PRIMARY KEY,
	dossier_id UUID NOT NULL REFERENCES dossiers(id),
	step_id UUID NOT NULL REFERENCES workflow_steps(id),
	from_status TEXT NOT NULL,
	to_status TEXT NOT NULL,
	reason TEXT NOT NULL,
	actor_id UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transfers (
	id UUID PRIMARY KEY,
	dossier_id UUID NOT NULL REFERENCES dossiers(id),
	source_world_id UUID NOT NULL REFERENCES worlds(id),
	target_world_id UUID NOT NULL REFERENCES worlds(id),
	transfer_type TEXT NOT NULL,
	transfer_status TEXT NOT NULL,
	target_dossier_id UUID,
	error_message TEXT,
	initiated_by UUID NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
