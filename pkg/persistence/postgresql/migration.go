package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions. Trigger and actions are stored as documents.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				enabled BOOLEAN NOT NULL DEFAULT false,
				trigger_type VARCHAR(64) NOT NULL,
				trigger_config JSONB NOT NULL,
				actions JSONB NOT NULL,
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				execution_count INTEGER NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_trigger_type ON workflows(trigger_type);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			CREATE TABLE workflow_executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				workflow_name VARCHAR(255) NOT NULL DEFAULT '',
				trigger_type VARCHAR(64) NOT NULL,
				status VARCHAR(32) NOT NULL CHECK (status IN ('running', 'waiting', 'completed', 'failed', 'cancelled')),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				triggered_by VARCHAR(255) NOT NULL DEFAULT '',
				trigger_data JSONB,
				steps JSONB NOT NULL DEFAULT '[]',
				error TEXT NOT NULL DEFAULT '',
				cancel_requested BOOLEAN NOT NULL DEFAULT false,
				resume_at TIMESTAMP WITH TIME ZONE,
				resume_after VARCHAR(255) NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_workflow_executions_workflow_id ON workflow_executions(workflow_id);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);
			CREATE INDEX idx_workflow_executions_started_at ON workflow_executions(started_at);
		`,
		2: `
			-- Continuations of executions suspended by wait_delay.
			CREATE TABLE resume_records (
				execution_id VARCHAR(255) PRIMARY KEY,
				resume_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_resume_records_resume_at ON resume_records(resume_at);

			-- Cron registrations of scheduled_time workflows, one per workflow.
			CREATE TABLE schedules (
				workflow_id VARCHAR(255) PRIMARY KEY,
				id VARCHAR(255) NOT NULL UNIQUE,
				cron_expression VARCHAR(255) NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_next_due_at ON schedules(next_due_at) WHERE active = true;
		`,
	}
}
