// Package provisioner runs the end-to-end saga that turns an agent request
// into a live workflow on the engine plus a consistent local mirror row. The
// steps are strictly sequential since each one consumes the previous step's
// output; remote side effects are not rolled back when a later step fails.
package provisioner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/capability"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/config"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/engineclient"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/metric"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/mirror"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/template"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/workflow"
)

// engineAPI is the slice of the engine client the saga consumes.
type engineAPI interface {
	CreateCredential(ctx context.Context, cred engineclient.Credential) (*engineclient.Credential, error)
	CreateWorkflow(ctx context.Context, w *workflow.Workflow) (*workflow.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	UpdateWorkflow(ctx context.Context, w *workflow.Workflow) (*workflow.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	ListWorkflows(ctx context.Context) ([]workflow.Workflow, error)
	SetWorkflowActive(ctx context.Context, id string, active bool) error
	EnsureRequiredNodes(ctx context.Context) []engineclient.InstallResult
	Ping(ctx context.Context) error
}

// typeDetector resolves credential types for the active engine.
type typeDetector interface {
	DetectCredentialTypes(ctx context.Context) capability.CredentialTypes
	Invalidate(baseURL string)
}

// Service orchestrates provisioning against the engine and the mirror.
type Service struct {
	engine   engineAPI
	detector typeDetector
	store    *mirror.Store
	guard    *config.Guard
	metrics  *metric.Metrics
	logger   *slog.Logger
}

// New creates the provisioning service.
func New(engine engineAPI, detector typeDetector, store *mirror.Store, guard *config.Guard, metrics *metric.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:   engine,
		detector: detector,
		store:    store,
		guard:    guard,
		metrics:  metrics,
		logger:   logger.With("component", "provisioner"),
	}
}

// CredentialInputs carries the secret payloads for the three credential
// slots, keyed to whatever types capability detection resolves.
type CredentialInputs struct {
	Platform map[string]any `json:"platform"`
	Model    map[string]any `json:"model"`
	Sheets   map[string]any `json:"sheets"`
}

// Request is one agent provisioning request.
type Request struct {
	WorkflowName string           `json:"workflowName"`
	Credentials  CredentialInputs `json:"credentials"`
	TemplateKind template.Kind    `json:"templateKind"`
	OwnerID      *int64           `json:"-"`
}

// Result identifies the provisioned workflow.
type Result struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Service) observeProvision(start time.Time, stepOnFailure string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		s.metrics.ProvisioningStepFailure.WithLabelValues(stepOnFailure).Inc()
	}
	s.metrics.ProvisioningTotal.WithLabelValues(outcome).Inc()
	s.metrics.ProvisioningDuration.Observe(time.Since(start).Seconds())
}

// ProvisionAgent runs the full provisioning saga. Credentials created before
// a later step fails stay on the engine; the deterministic credential names
// make a retry reuse-friendly rather than orphan-accumulating.
func (s *Service) ProvisionAgent(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	name := strings.TrimSpace(req.WorkflowName)
	if name == "" {
		err := errors.WrapInvalid(errors.ErrMissingConfig, "Service", "ProvisionAgent", "check workflow name")
		s.observeProvision(start, "validate", err)
		return nil, err
	}
	log := s.logger.With("workflow", name)

	// Step 1: capability detection, best effort by construction.
	types := s.detector.DetectCredentialTypes(ctx)

	// Step 2: the three credentials, strictly in order. A failure names the
	// slot that failed; earlier credentials stay on the engine.
	type slot struct {
		which string
		label string
		typ   string
		data  map[string]any
	}
	slots := []slot{
		{"platform", template.LabelPlatform, types.Platform, req.Credentials.Platform},
		{"model", template.LabelModel, types.Model, req.Credentials.Model},
		{"sheets", template.LabelSheets, types.Sheets, req.Credentials.Sheets},
	}
	credIDs := make(map[string]string, len(slots))
	for _, sl := range slots {
		created, err := s.engine.CreateCredential(ctx, engineclient.Credential{
			Name: template.CredentialName(sl.label, name),
			Type: sl.typ,
			Data: sl.data,
		})
		if err != nil {
			wrapped := fmt.Errorf("failed to create %s credential: %w", sl.which, err)
			log.Error("credential creation failed", "slot", sl.which, "type", sl.typ, "err", err)
			s.observeProvision(start, "credential_"+sl.which, wrapped)
			return nil, wrapped
		}
		credIDs[sl.which] = created.ID
		log.Info("credential created", "slot", sl.which, "type", sl.typ, "id", created.ID)
	}

	// Step 3: best-effort package install; never blocks creation.
	for _, res := range s.engine.EnsureRequiredNodes(ctx) {
		if res.NeedsManual {
			log.Warn("community package needs manual install",
				"package", res.Package, "instructions", res.Instructions)
		}
	}

	// Step 4: assemble the document.
	doc, err := template.Build(req.TemplateKind, template.Params{
		WorkflowName:   name,
		PlatformCredID: credIDs["platform"],
		ModelCredID:    credIDs["model"],
		SheetsCredID:   credIDs["sheets"],
		Types:          types,
	})
	if err != nil {
		s.observeProvision(start, "assemble", err)
		return nil, err
	}

	// Step 5: submit. The assembled document goes to the log on failure so
	// a rejected graph can be inspected.
	created, err := s.engine.CreateWorkflow(ctx, doc)
	if err != nil {
		if raw, mErr := doc.MarshalDocument(); mErr == nil {
			log.Error("workflow creation rejected", "err", err, "template", string(raw))
		} else {
			log.Error("workflow creation rejected", "err", err)
		}
		s.observeProvision(start, "submit", err)
		return nil, err
	}

	// Step 6: mirror the stored copy.
	if err := s.store.SyncWorkflows(ctx, []workflow.Workflow{*created}, req.OwnerID); err != nil {
		s.observeProvision(start, "mirror", err)
		return nil, err
	}

	// Step 7: redacted local credential copy, for display only.
	redacted := map[string]json.RawMessage{}
	for _, sl := range slots {
		payload, err := json.Marshal(redactSecrets(sl.data))
		if err != nil {
			continue
		}
		redacted[sl.typ] = payload
	}
	if err := s.store.SaveCredentials(ctx, created.ID, redacted); err != nil {
		s.observeProvision(start, "credentials_local", err)
		return nil, err
	}

	s.observeProvision(start, "", nil)
	log.Info("agent provisioned", "id", created.ID)
	return &Result{ID: created.ID, Name: created.Name}, nil
}

// secretKeyFragments mark payload fields that never reach the local copy.
var secretKeyFragments = []string{"token", "key", "secret", "password", "credential"}

func redactSecrets(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		lower := strings.ToLower(k)
		masked := false
		for _, fragment := range secretKeyFragments {
			if strings.Contains(lower, fragment) {
				masked = true
				break
			}
		}
		if masked {
			out[k] = "***"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = redactSecrets(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// SyncFromEngine lists every remote workflow and mirrors the batch.
func (s *Service) SyncFromEngine(ctx context.Context, ownerID *int64) (int, error) {
	flows, err := s.engine.ListWorkflows(ctx)
	if err != nil {
		return 0, err
	}
	if len(flows) == 0 {
		return 0, nil
	}
	if err := s.store.SyncWorkflows(ctx, flows, ownerID); err != nil {
		return 0, err
	}
	return len(flows), nil
}

// UpdateAgentPrompt patches the agent prompt inside the remote document,
// pushes the update, then resyncs the mirror from the engine's stored copy.
func (s *Service) UpdateAgentPrompt(ctx context.Context, workflowID, prompt, nameHint string) error {
	return s.pushPrompt(ctx, workflowID, prompt, nameHint, false)
}

// ApplyStructuredPrompt composes the structured prompt expression and writes
// it into every prompt-bearing node of the workflow.
func (s *Service) ApplyStructuredPrompt(ctx context.Context, workflowID string, sections template.PromptSections) error {
	return s.pushPrompt(ctx, workflowID, template.BuildStructuredPrompt(sections), "", true)
}

func (s *Service) pushPrompt(ctx context.Context, workflowID, prompt, nameHint string, broad bool) error {
	doc, err := s.engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if err := workflow.UpdatePrompt(doc, prompt, nameHint, broad); err != nil {
		return err
	}
	if _, err := s.engine.UpdateWorkflow(ctx, doc); err != nil {
		return err
	}

	// Mirror the engine's stored copy, not our local patch.
	stored, err := s.engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	return s.store.SyncWorkflows(ctx, []workflow.Workflow{*stored}, nil)
}

// ListMirroredWorkflows reads the local workflow listing, optionally scoped
// to an owner.
func (s *Service) ListMirroredWorkflows(ctx context.Context, ownerID *int64) ([]mirror.WorkflowSummary, error) {
	return s.store.ListWorkflows(ctx, ownerID)
}

// GetMirroredWorkflow reads one mirrored workflow with its agents.
func (s *Service) GetMirroredWorkflow(ctx context.Context, id string) (*mirror.WorkflowDetail, error) {
	return s.store.GetWorkflowWithAgents(ctx, id)
}

// GetMirroredCredentials reads the redacted credential copies for a workflow.
func (s *Service) GetMirroredCredentials(ctx context.Context, workflowID string) ([]mirror.CredentialRecord, error) {
	return s.store.GetCredentials(ctx, workflowID)
}

// DeleteAgent removes the workflow remotely (absent counts as success) and
// drops the mirrored rows.
func (s *Service) DeleteAgent(ctx context.Context, workflowID string) error {
	if err := s.engine.DeleteWorkflow(ctx, workflowID); err != nil {
		return err
	}
	return s.store.DeleteWorkflow(ctx, workflowID)
}

// SetAgentActive flips activation remotely and mirrors the flag.
func (s *Service) SetAgentActive(ctx context.Context, workflowID string, active bool) error {
	if err := s.engine.SetWorkflowActive(ctx, workflowID, active); err != nil {
		return err
	}
	return s.store.SetWorkflowActive(ctx, workflowID, active)
}

// RenameAgent renames the workflow remotely and mirrors the new name.
func (s *Service) RenameAgent(ctx context.Context, workflowID, name string) error {
	doc, err := s.engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	doc.Name = name
	if _, err := s.engine.UpdateWorkflow(ctx, doc); err != nil {
		return err
	}
	return s.store.RenameWorkflow(ctx, workflowID, name)
}

// RotateEndpoint swaps the active engine endpoint. When the base URL really
// changed the mirror is purged first: rows from two different instances must
// never share the local keyspace.
func (s *Service) RotateEndpoint(ctx context.Context, ep config.Endpoint) error {
	ep = ep.Normalize()
	previous := s.guard.Rotate(ep)

	if err := s.engine.Ping(ctx); err != nil {
		// Roll the guard back so a bad rotation doesn't strand the service.
		s.guard.Rotate(previous)
		return err
	}

	if previous.BaseURL != ep.BaseURL {
		s.detector.Invalidate(previous.BaseURL)
		s.detector.Invalidate(ep.BaseURL)
		if err := s.store.Purge(ctx); err != nil {
			return err
		}
		s.logger.Info("engine instance changed, mirror purged",
			"previous", previous.BaseURL, "current", ep.BaseURL)
		if _, err := s.SyncFromEngine(ctx, nil); err != nil {
			s.logger.Warn("initial resync after rotation failed", "err", err)
		}
	}
	return nil
}
