package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Template hierarchy
			CREATE TABLE workflow_templates (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				code VARCHAR(100) NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT true,
				estimated_duration_days INT,
				operator_duration_days INT,
				duration_source VARCHAR(20) NOT NULL DEFAULT 'operator',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX uq_workflow_templates_active_name ON workflow_templates (lower(name)) WHERE active;
			CREATE INDEX idx_workflow_templates_code ON workflow_templates (lower(code));
			CREATE INDEX idx_workflow_templates_created_at ON workflow_templates (created_at);

			CREATE TABLE milestone_templates (
				id VARCHAR(64) PRIMARY KEY,
				workflow_template_id VARCHAR(64) NOT NULL REFERENCES workflow_templates(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				ordinal INT NOT NULL CHECK (ordinal >= 1),
				estimated_duration_days INT,
				sla_days INT,
				operator_sla_days INT,
				sla_source VARCHAR(20) NOT NULL DEFAULT 'operator',
				warning_days INT NOT NULL DEFAULT 2,
				escalation_days INT NOT NULL DEFAULT 1,
				milestone_type VARCHAR(20) NOT NULL DEFAULT 'standard',
				auto_generate_tickets BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				CONSTRAINT uq_milestone_templates_ordinal UNIQUE (workflow_template_id, ordinal) DEFERRABLE INITIALLY DEFERRED
			);

			CREATE TABLE task_templates (
				id VARCHAR(64) PRIMARY KEY,
				milestone_template_id VARCHAR(64) NOT NULL REFERENCES milestone_templates(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				ordinal INT NOT NULL CHECK (ordinal >= 1),
				estimated_hours INT,
				responsible_role VARCHAR(100) NOT NULL DEFAULT '',
				mandatory BOOLEAN NOT NULL DEFAULT true,
				task_type VARCHAR(20) NOT NULL DEFAULT 'standard',
				checklist_template JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				CONSTRAINT uq_task_templates_ordinal UNIQUE (milestone_template_id, ordinal) DEFERRABLE INITIALLY DEFERRED
			);
		`,
		2: `
			-- Ticket generation ledger, one row per (ticket, milestone)
			CREATE TABLE ticket_generation_triggers (
				ticket_id VARCHAR(255) NOT NULL,
				milestone_template_id VARCHAR(64) NOT NULL,
				status VARCHAR(20) NOT NULL,
				attempts INT NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (ticket_id, milestone_template_id)
			);
		`,
	}
}
