// Package mirror keeps a local relational copy of the engine-side workflow
// state so the UI can list and inspect agents without round-tripping to the
// engine. SQLite with WAL mode; all multi-row writes run in a single
// transaction so the mirror never holds a partial sync.
package mirror

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/metric"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/workflow"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is the local mirror database.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures a Store
type Option func(*Store)

// WithMetrics attaches sync metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Open creates or opens the mirror database at the given path, applying
// pragmas and the schema. Idempotent.
func Open(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Store", "Open", "open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WrapFatal(err, "Store", "Open", "connect to database")
	}

	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent syncs.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.WrapFatal(err, "Store", "Open", fmt.Sprintf("apply %s", pragma))
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.WrapFatal(err, "Store", "Open", "apply schema")
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		db.Close()
		return nil, errors.WrapFatal(err, "Store", "Open", "set schema version")
	}

	s := &Store{db: db, logger: logger.With("component", "mirror")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// inTx runs fn inside a transaction, rolling back on any error.
func (s *Store) inTx(ctx context.Context, method string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrLocalTransaction, "Store", method, "begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "method", method, "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrLocalTransaction, "Store", method, "commit transaction")
	}
	return nil
}

// SyncWorkflows replaces the mirrored state of the given workflows in one
// transaction: agent rows for these workflows are deleted, the workflow rows
// are upserted, and agents are rebuilt from the agent nodes in each
// document. Any failure rolls the whole batch back.
func (s *Store) SyncWorkflows(ctx context.Context, flows []workflow.Workflow, ownerID *int64) error {
	if len(flows) == 0 {
		return nil
	}

	err := s.inTx(ctx, "SyncWorkflows", func(tx *sql.Tx) error {
		for i := range flows {
			if err := s.syncOne(ctx, tx, &flows[i], ownerID); err != nil {
				return err
			}
		}
		return nil
	})

	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.metrics.MirrorSyncs.WithLabelValues(outcome).Inc()
	}
	if err == nil {
		if s.metrics != nil {
			if total, cErr := s.CountWorkflows(ctx); cErr == nil {
				s.metrics.MirrorWorkflowsTotal.Set(float64(total))
			}
		}
		s.logger.Info("workflows synced", "count", len(flows))
	}
	return err
}

func (s *Store) syncOne(ctx context.Context, tx *sql.Tx, w *workflow.Workflow, ownerID *int64) error {
	if w.ID == "" {
		return errors.WrapInvalid(errors.ErrWorkflowNotFound, "Store", "SyncWorkflows", "sync workflow without id")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE workflow_id = ?`, w.ID); err != nil {
		return errors.Wrap(err, "Store", "SyncWorkflows", "clear agents")
	}

	nodes, err := json.Marshal(w.Nodes)
	if err != nil {
		return errors.WrapInvalid(err, "Store", "SyncWorkflows", "encode nodes")
	}
	conns, err := json.Marshal(w.Connections)
	if err != nil {
		return errors.WrapInvalid(err, "Store", "SyncWorkflows", "encode connections")
	}
	settings, err := json.Marshal(w.Settings)
	if err != nil {
		return errors.WrapInvalid(err, "Store", "SyncWorkflows", "encode settings")
	}
	var staticData any
	if len(w.StaticData) > 0 {
		encoded, err := json.Marshal(w.StaticData)
		if err != nil {
			return errors.WrapInvalid(err, "Store", "SyncWorkflows", "encode static data")
		}
		staticData = string(encoded)
	}
	tags, err := json.Marshal(w.Tags)
	if err != nil {
		return errors.WrapInvalid(err, "Store", "SyncWorkflows", "encode tags")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows
			(id, name, active, nodes, connections, settings, static_data, tags,
			 trigger_count, owner_user_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			name          = excluded.name,
			active        = excluded.active,
			nodes         = excluded.nodes,
			connections   = excluded.connections,
			settings      = excluded.settings,
			static_data   = excluded.static_data,
			tags          = excluded.tags,
			trigger_count = excluded.trigger_count,
			owner_user_id = COALESCE(excluded.owner_user_id, workflows.owner_user_id),
			updated_at    = datetime('now')`,
		w.ID, w.Name, w.Active, string(nodes), string(conns), string(settings),
		staticData, string(tags), w.TriggerCount, ownerID)
	if err != nil {
		return errors.Wrap(err, "Store", "SyncWorkflows", "upsert workflow")
	}

	for _, n := range w.Nodes {
		if workflow.ClassifyNode(n) != workflow.KindAgent {
			continue
		}
		prompt, _ := workflow.PromptOf(n)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agents (workflow_id, name, prompt, active)
			VALUES (?, ?, ?, ?)`,
			w.ID, n.Name, prompt, w.Active); err != nil {
			return errors.Wrap(err, "Store", "SyncWorkflows", "insert agent")
		}
	}
	return nil
}

// SaveCredentials upserts the stored credential payloads for a workflow in
// one transaction, keyed on (workflow_id, type).
func (s *Store) SaveCredentials(ctx context.Context, workflowID string, creds map[string]json.RawMessage) error {
	if workflowID == "" || len(creds) == 0 {
		return nil
	}
	return s.inTx(ctx, "SaveCredentials", func(tx *sql.Tx) error {
		for credType, payload := range creds {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO credentials (workflow_id, type, payload)
				VALUES (?, ?, ?)
				ON CONFLICT(workflow_id, type) DO UPDATE SET payload = excluded.payload`,
				workflowID, credType, string(payload)); err != nil {
				return errors.Wrap(err, "Store", "SaveCredentials", "upsert credential")
			}
		}
		return nil
	})
}

// WorkflowSummary is one row of the workflow listing.
type WorkflowSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`
	TriggerCount int    `json:"triggerCount"`
	OwnerID      *int64 `json:"ownerUserId,omitempty"`
	AgentCount   int    `json:"agentCount"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

// AgentRecord is a mirrored agent row.
type AgentRecord struct {
	ID          int64  `json:"id"`
	WorkflowID  string `json:"workflowId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	Active      bool   `json:"active"`
}

// WorkflowDetail is a mirrored workflow with its agents and raw document
// columns.
type WorkflowDetail struct {
	WorkflowSummary
	Nodes       json.RawMessage `json:"nodes"`
	Connections json.RawMessage `json:"connections"`
	Settings    json.RawMessage `json:"settings"`
	Agents      []AgentRecord   `json:"agents"`
}

// CredentialRecord is a stored credential payload for a workflow.
type CredentialRecord struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ListWorkflows returns mirrored workflows with their agent counts, filtered
// by owner when ownerID is non-nil.
func (s *Store) ListWorkflows(ctx context.Context, ownerID *int64) ([]WorkflowSummary, error) {
	query := `
		SELECT w.id, w.name, w.active, w.trigger_count, w.owner_user_id,
		       COUNT(a.id), w.created_at, w.updated_at
		FROM workflows w
		LEFT JOIN agents a ON a.workflow_id = w.id
		%s
		GROUP BY w.id
		ORDER BY w.updated_at DESC`

	var rows *sql.Rows
	var err error
	if ownerID != nil {
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(query, "WHERE w.owner_user_id = ?"), *ownerID)
	} else {
		rows, err = s.db.QueryContext(ctx, fmt.Sprintf(query, ""))
	}
	if err != nil {
		return nil, errors.Wrap(err, "Store", "ListWorkflows", "query workflows")
	}
	defer rows.Close()

	var out []WorkflowSummary
	for rows.Next() {
		var w WorkflowSummary
		if err := rows.Scan(&w.ID, &w.Name, &w.Active, &w.TriggerCount,
			&w.OwnerID, &w.AgentCount, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "Store", "ListWorkflows", "scan row")
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetWorkflowWithAgents fetches one mirrored workflow and its agents.
func (s *Store) GetWorkflowWithAgents(ctx context.Context, id string) (*WorkflowDetail, error) {
	var d WorkflowDetail
	var nodes, conns, settings string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, active, trigger_count, owner_user_id,
		       nodes, connections, settings, created_at, updated_at
		FROM workflows WHERE id = ?`, id).Scan(
		&d.ID, &d.Name, &d.Active, &d.TriggerCount, &d.OwnerID,
		&nodes, &conns, &settings, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.WrapInvalid(errors.ErrWorkflowNotFound, "Store", "GetWorkflowWithAgents", fmt.Sprintf("fetch workflow %s", id))
	}
	if err != nil {
		return nil, errors.Wrap(err, "Store", "GetWorkflowWithAgents", "query workflow")
	}
	d.Nodes = json.RawMessage(nodes)
	d.Connections = json.RawMessage(conns)
	d.Settings = json.RawMessage(settings)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, name, COALESCE(description, ''), COALESCE(prompt, ''), active
		FROM agents WHERE workflow_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "GetWorkflowWithAgents", "query agents")
	}
	defer rows.Close()
	for rows.Next() {
		var a AgentRecord
		if err := rows.Scan(&a.ID, &a.WorkflowID, &a.Name, &a.Description, &a.Prompt, &a.Active); err != nil {
			return nil, errors.Wrap(err, "Store", "GetWorkflowWithAgents", "scan agent")
		}
		d.Agents = append(d.Agents, a)
	}
	d.AgentCount = len(d.Agents)
	return &d, rows.Err()
}

// GetCredentials returns the stored credential payloads for a workflow.
func (s *Store) GetCredentials(ctx context.Context, workflowID string) ([]CredentialRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, payload FROM credentials WHERE workflow_id = ? ORDER BY type`, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "GetCredentials", "query credentials")
	}
	defer rows.Close()

	var out []CredentialRecord
	for rows.Next() {
		var c CredentialRecord
		var payload string
		if err := rows.Scan(&c.Type, &payload); err != nil {
			return nil, errors.Wrap(err, "Store", "GetCredentials", "scan credential")
		}
		c.Payload = json.RawMessage(payload)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteWorkflow removes a mirrored workflow; agents and credentials cascade.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "Store", "DeleteWorkflow", "delete workflow")
	}
	return nil
}

// SetWorkflowActive flips the mirrored active flag for a workflow and its
// agents.
func (s *Store) SetWorkflowActive(ctx context.Context, id string, active bool) error {
	return s.inTx(ctx, "SetWorkflowActive", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE workflows SET active = ?, updated_at = datetime('now') WHERE id = ?`, active, id)
		if err != nil {
			return errors.Wrap(err, "Store", "SetWorkflowActive", "update workflow")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.WrapInvalid(errors.ErrWorkflowNotFound, "Store", "SetWorkflowActive", fmt.Sprintf("update workflow %s", id))
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE agents SET active = ? WHERE workflow_id = ?`, active, id); err != nil {
			return errors.Wrap(err, "Store", "SetWorkflowActive", "update agents")
		}
		return nil
	})
}

// RenameWorkflow updates the mirrored workflow name.
func (s *Store) RenameWorkflow(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET name = ?, updated_at = datetime('now') WHERE id = ?`, name, id)
	if err != nil {
		return errors.Wrap(err, "Store", "RenameWorkflow", "update workflow")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.WrapInvalid(errors.ErrWorkflowNotFound, "Store", "RenameWorkflow", fmt.Sprintf("rename workflow %s", id))
	}
	return nil
}

// UpdateAgentPrompt stores the new prompt for every agent of a workflow.
func (s *Store) UpdateAgentPrompt(ctx context.Context, workflowID, prompt string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agents SET prompt = ? WHERE workflow_id = ?`, prompt, workflowID)
	if err != nil {
		return errors.Wrap(err, "Store", "UpdateAgentPrompt", "update agents")
	}
	return nil
}

// RenameAgent updates a single mirrored agent's display name.
func (s *Store) RenameAgent(ctx context.Context, agentID int64, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET name = ? WHERE id = ?`, name, agentID)
	if err != nil {
		return errors.Wrap(err, "Store", "RenameAgent", "update agent")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.WrapInvalid(errors.ErrStructuralNotFound, "Store", "RenameAgent", fmt.Sprintf("rename agent %d", agentID))
	}
	return nil
}

// Purge wipes all mirrored state; used when switching engine instances.
func (s *Store) Purge(ctx context.Context) error {
	return s.inTx(ctx, "Purge", func(tx *sql.Tx) error {
		for _, table := range []string{"credentials", "agents", "workflows"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return errors.Wrap(err, "Store", "Purge", "clear "+table)
			}
		}
		return nil
	})
}

// CountWorkflows reports the number of mirrored workflows; feeds the gauge.
func (s *Store) CountWorkflows(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "Store", "CountWorkflows", "count workflows")
	}
	return n, nil
}
