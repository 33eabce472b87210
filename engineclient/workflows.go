package engineclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/metric"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/workflow"
)

// listEnvelope is the engine's paginated list wrapper. Older engines return
// a bare array instead, so decoding tolerates both shapes.
type listEnvelope struct {
	Data []workflow.Workflow `json:"data"`
}

func decodeWorkflowList(raw json.RawMessage) ([]workflow.Workflow, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Data != nil {
		return env.Data, nil
	}
	var bare []workflow.Workflow
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}

// CreateWorkflow validates the document locally and creates it on the engine,
// returning the engine's stored copy (with its assigned ID).
func (c *Client) CreateWorkflow(ctx context.Context, w *workflow.Workflow) (*workflow.Workflow, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	doc, err := w.MarshalDocument()
	if err != nil {
		return nil, err
	}
	if err := workflow.ValidateDocument(doc); err != nil {
		return nil, err
	}

	var created workflow.Workflow
	if err := c.callWithFallback(ctx, "create_workflow", http.MethodPost, "/workflows", w, &created); err != nil {
		return nil, err
	}
	c.logger.Info("workflow created", "id", created.ID, "name", created.Name)
	return &created, nil
}

// GetWorkflow fetches a workflow by engine ID.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	var w workflow.Workflow
	err := c.callWithFallback(ctx, "get_workflow", http.MethodGet, "/workflows/"+url.PathEscape(id), nil, &w)
	if err != nil {
		if errors.RemoteStatus(err) == http.StatusNotFound {
			return nil, errors.WrapInvalid(errors.ErrWorkflowNotFound, "Client", "GetWorkflow", fmt.Sprintf("fetch workflow %s", id))
		}
		return nil, err
	}
	return &w, nil
}

// ListWorkflows returns every workflow the engine stores.
func (c *Client) ListWorkflows(ctx context.Context) ([]workflow.Workflow, error) {
	var raw json.RawMessage
	if err := c.callWithFallback(ctx, "list_workflows", http.MethodGet, "/workflows", nil, &raw); err != nil {
		return nil, err
	}
	list, err := decodeWorkflowList(raw)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "ListWorkflows", "decode workflow list")
	}
	return list, nil
}

// UpdateWorkflow pushes the mutable fields of the document back to the
// engine. The engine rejects full documents carrying read-only fields, so
// only the update projection goes over the wire.
func (c *Client) UpdateWorkflow(ctx context.Context, w *workflow.Workflow) (*workflow.Workflow, error) {
	if w.ID == "" {
		return nil, errors.WrapInvalid(errors.ErrWorkflowNotFound, "Client", "UpdateWorkflow", "update workflow without id")
	}
	var updated workflow.Workflow
	err := c.callWithFallback(ctx, "update_workflow", http.MethodPut,
		"/workflows/"+url.PathEscape(w.ID), w.ForUpdate(), &updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteWorkflow removes a workflow. A 404 counts as success so deletes are
// idempotent; no legacy-path fallback is attempted since the outcome is
// already settled.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	err := c.call(ctx, "delete_workflow", http.MethodDelete, metric.PathCurrent,
		currentPrefix+"/workflows/"+url.PathEscape(id), nil, nil)
	if err == nil {
		return nil
	}
	if errors.RemoteStatus(err) == http.StatusNotFound {
		c.logger.Info("workflow already absent on engine", "id", id)
		return nil
	}
	return err
}

// SetWorkflowActive activates or deactivates a workflow.
func (c *Client) SetWorkflowActive(ctx context.Context, id string, active bool) error {
	action := "deactivate"
	if active {
		action = "activate"
	}
	return c.callWithFallback(ctx, "set_workflow_active", http.MethodPost,
		"/workflows/"+url.PathEscape(id)+"/"+action, nil, nil)
}

// FindWorkflowByName returns the first workflow whose name contains the
// given fragment, case-insensitively, or nil when none matches.
func (c *Client) FindWorkflowByName(ctx context.Context, fragment string) (*workflow.Workflow, error) {
	list, err := c.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(fragment)
	for i := range list {
		if strings.Contains(strings.ToLower(list[i].Name), needle) {
			return &list[i], nil
		}
	}
	return nil, nil
}

// TriggerWebhook posts a payload to a workflow's webhook path. Webhooks live
// outside the API prefixes, so this goes straight to the base URL.
func (c *Client) TriggerWebhook(ctx context.Context, path string, payload any) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.call(ctx, "trigger_webhook", http.MethodPost, metric.PathCurrent, "/webhook"+path, payload, nil)
}
