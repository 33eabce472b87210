package engineclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/metric"
)

// Credential is a stored engine credential. Data carries the secret payload
// on create/update and is absent on reads.
type Credential struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// CreateCredential stores a credential on the engine and returns the stored
// record with its assigned ID.
func (c *Client) CreateCredential(ctx context.Context, cred Credential) (*Credential, error) {
	if cred.Name == "" || cred.Type == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "CreateCredential", "check credential name and type")
	}
	var created Credential
	if err := c.callWithFallback(ctx, "create_credential", http.MethodPost, "/credentials", cred, &created); err != nil {
		return nil, err
	}
	c.logger.Info("credential created", "id", created.ID, "type", created.Type)
	return &created, nil
}

// UpdateCredential replaces a stored credential's payload.
func (c *Client) UpdateCredential(ctx context.Context, id string, cred Credential) (*Credential, error) {
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrCredentialNotFound, "Client", "UpdateCredential", "update credential without id")
	}
	var updated Credential
	err := c.callWithFallback(ctx, "update_credential", http.MethodPatch,
		"/credentials/"+url.PathEscape(id), cred, &updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetCredentials lists stored credentials. Engines disagree on the verb and
// path across generations, so this walks GET /api/v1, then POST /api/v1 when
// the verb is refused, then GET /rest.
func (c *Client) GetCredentials(ctx context.Context) ([]Credential, error) {
	var raw json.RawMessage

	err := c.call(ctx, "get_credentials", http.MethodGet, metric.PathCurrent, currentPrefix+"/credentials", nil, &raw)
	if err != nil && errors.RemoteStatus(err) == http.StatusMethodNotAllowed {
		err = c.call(ctx, "get_credentials", http.MethodPost, metric.PathCurrent, currentPrefix+"/credentials", nil, &raw)
	}
	if err != nil && errors.IsVersionMismatch(err) {
		if c.metrics != nil {
			c.metrics.EngineFallbacks.WithLabelValues("get_credentials").Inc()
		}
		err = c.call(ctx, "get_credentials", http.MethodGet, metric.PathLegacy, legacyPrefix+"/credentials", nil, &raw)
	}
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 {
		return nil, nil
	}
	var env struct {
		Data []Credential `json:"data"`
	}
	if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil && env.Data != nil {
		return env.Data, nil
	}
	var bare []Credential
	if jsonErr := json.Unmarshal(raw, &bare); jsonErr != nil {
		return nil, errors.WrapInvalid(jsonErr, "Client", "GetCredentials", "decode credential list")
	}
	return bare, nil
}

// DeleteCredential removes a credential; a 404 counts as success.
func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	err := c.call(ctx, "delete_credential", http.MethodDelete, metric.PathCurrent,
		currentPrefix+"/credentials/"+url.PathEscape(id), nil, nil)
	if err == nil || errors.RemoteStatus(err) == http.StatusNotFound {
		return nil
	}
	return err
}
