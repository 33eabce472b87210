package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/capability"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/config"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/engineclient"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/mirror"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/provisioner"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/workflow"
)

// stubEngine satisfies the provisioner's engine surface with canned data.
type stubEngine struct {
	workflows map[string]*workflow.Workflow
	nextID    int
}

func newStubEngine() *stubEngine {
	return &stubEngine{workflows: map[string]*workflow.Workflow{}}
}

func (e *stubEngine) CreateCredential(_ context.Context, cred engineclient.Credential) (*engineclient.Credential, error) {
	stored := cred
	stored.ID = "cred-" + cred.Type
	return &stored, nil
}

func (e *stubEngine) CreateWorkflow(_ context.Context, w *workflow.Workflow) (*workflow.Workflow, error) {
	e.nextID++
	stored := *w
	stored.ID = fmt.Sprintf("wf-%d", e.nextID)
	e.workflows[stored.ID] = &stored
	return &stored, nil
}

func (e *stubEngine) GetWorkflow(_ context.Context, id string) (*workflow.Workflow, error) {
	w, ok := e.workflows[id]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrWorkflowNotFound, "stubEngine", "GetWorkflow", "fetch workflow")
	}
	copied := *w
	return &copied, nil
}

func (e *stubEngine) UpdateWorkflow(_ context.Context, w *workflow.Workflow) (*workflow.Workflow, error) {
	stored := *w
	e.workflows[w.ID] = &stored
	return &stored, nil
}

func (e *stubEngine) DeleteWorkflow(_ context.Context, id string) error {
	delete(e.workflows, id)
	return nil
}

func (e *stubEngine) ListWorkflows(_ context.Context) ([]workflow.Workflow, error) {
	var out []workflow.Workflow
	for _, w := range e.workflows {
		out = append(out, *w)
	}
	return out, nil
}

func (e *stubEngine) SetWorkflowActive(_ context.Context, id string, active bool) error {
	if w, ok := e.workflows[id]; ok {
		w.Active = active
	}
	return nil
}

func (e *stubEngine) EnsureRequiredNodes(context.Context) []engineclient.InstallResult { return nil }
func (e *stubEngine) Ping(context.Context) error                                      { return nil }

type stubDetector struct{}

func (stubDetector) DetectCredentialTypes(context.Context) capability.CredentialTypes {
	return capability.CredentialTypes{
		Platform: capability.TypePlatformNative,
		Model:    capability.TypeModelNative,
		Sheets:   capability.TypeSheetsOAuth,
	}
}
func (stubDetector) Invalidate(string) {}

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	store, err := mirror.Open(filepath.Join(t.TempDir(), "mirror.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	guard := config.NewGuard(config.Endpoint{BaseURL: "http://engine.local", APIKey: "ek"})
	svc := provisioner.New(newStubEngine(), stubDetector{}, store, guard, nil, nil)

	return NewServer(svc, config.ServerConfig{
		Addr:        ":0",
		APIKey:      apiKey,
		CORSOrigins: []string{"http://app.example.com"},
	}, nil)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func provisionBody() map[string]any {
	return map[string]any{
		"workflowName": "Agente Web",
		"credentials": map[string]any{
			"platform": map[string]any{"url": "https://chat.example.com", "accessToken": "t"},
			"model":    map[string]any{"apiKey": "k"},
			"sheets":   map[string]any{"clientId": "c", "clientSecret": "s"},
		},
	}
}

func TestHealthEndpointIsOpen(t *testing.T) {
	srv := newTestServer(t, "secret")
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyEnforcement(t *testing.T) {
	srv := newTestServer(t, "secret")

	rec := doJSON(t, srv, http.MethodGet, "/api/workflows", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/workflows", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/workflows", nil, "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProvisionEndToEnd(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/agents?ownerId=9", provisionBody(), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "wf-1", resp.Data.ID)

	rec = doJSON(t, srv, http.MethodGet, "/api/workflows?ownerId=9", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Success bool `json:"success"`
		Data    []struct {
			ID         string `json:"id"`
			AgentCount int    `json:"agentCount"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Data, 1)
	assert.Equal(t, 1, listResp.Data[0].AgentCount)
}

func TestProvisionRejectsEmptyName(t *testing.T) {
	srv := newTestServer(t, "")
	body := provisionBody()
	body["workflowName"] = "  "
	rec := doJSON(t, srv, http.MethodPost, "/api/agents", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkflowNotFound(t *testing.T) {
	srv := newTestServer(t, "")
	rec := doJSON(t, srv, http.MethodGet, "/api/workflows/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestPatchWorkflowNameAndActive(t *testing.T) {
	srv := newTestServer(t, "")
	doJSON(t, srv, http.MethodPost, "/api/agents", provisionBody(), "")

	rec := doJSON(t, srv, http.MethodPatch, "/api/workflows/wf-1",
		map[string]any{"name": "Agente Renomeado", "active": false}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodGet, "/api/workflows/wf-1", nil, "")
	var resp struct {
		Data struct {
			Name   string `json:"name"`
			Active bool   `json:"active"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Agente Renomeado", resp.Data.Name)
	assert.False(t, resp.Data.Active)
}

func TestPatchWorkflowRequiresAField(t *testing.T) {
	srv := newTestServer(t, "")
	rec := doJSON(t, srv, http.MethodPatch, "/api/workflows/wf-1", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteWorkflowIsIdempotent(t *testing.T) {
	srv := newTestServer(t, "")
	doJSON(t, srv, http.MethodPost, "/api/agents", provisionBody(), "")

	rec := doJSON(t, srv, http.MethodDelete, "/api/workflows/wf-1", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/workflows/wf-1", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPromptUpdateEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	doJSON(t, srv, http.MethodPost, "/api/agents", provisionBody(), "")

	rec := doJSON(t, srv, http.MethodPost, "/api/agents/wf-1/prompt",
		map[string]any{"prompt": "novo prompt"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodPost, "/api/agents/wf-1/prompt", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStructuredPromptEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	doJSON(t, srv, http.MethodPost, "/api/agents", provisionBody(), "")

	rec := doJSON(t, srv, http.MethodPost, "/api/agents/wf-1/prompt", map[string]any{
		"structured": map[string]any{
			"personalidade":  "formal",
			"papel":          "assistente",
			"exibirHoraData": true,
		},
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCredentialsEndpointReturnsRedactedCopies(t *testing.T) {
	srv := newTestServer(t, "")
	doJSON(t, srv, http.MethodPost, "/api/agents", provisionBody(), "")

	rec := doJSON(t, srv, http.MethodGet, "/api/workflows/wf-1/credentials", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"t"`, "secrets never reach the API")
	assert.Contains(t, rec.Body.String(), "chatwootApi")
}

func TestRequestIDPropagation(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil, "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	got := httptest.NewRecorder()
	srv.Handler().ServeHTTP(got, req)
	assert.Equal(t, "caller-supplied", got.Header().Get("X-Request-ID"))
}

func TestCORSPreflights(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/workflows", nil)
	req.Header.Set("Origin", "http://app.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRotateEndpointValidation(t *testing.T) {
	srv := newTestServer(t, "")
	rec := doJSON(t, srv, http.MethodPut, "/api/config/engine", map[string]any{"baseUrl": ""}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
