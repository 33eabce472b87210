package engineclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/credentials", r.URL.Path)
		w.Write([]byte(`{"id":"cred1","name":"ChatWoot Credential for Agente","type":"chatwootApi"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	created, err := c.CreateCredential(context.Background(), Credential{
		Name: "ChatWoot Credential for Agente",
		Type: "chatwootApi",
		Data: map[string]any{"url": "https://chat.example.com", "accessToken": "tok"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cred1", created.ID)
}

func TestCreateCredentialRejectsIncomplete(t *testing.T) {
	c := newTestClient(t, "http://localhost:1")
	_, err := c.CreateCredential(context.Background(), Credential{Name: "no type"})
	require.Error(t, err)
}

func TestGetCredentialsVerbAndPathChain(t *testing.T) {
	var sequence []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sequence = append(sequence, r.Method+" "+r.URL.Path)
		switch {
		case r.URL.Path == "/api/v1/credentials" && r.Method == http.MethodGet:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case r.URL.Path == "/api/v1/credentials" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/rest/credentials":
			w.Write([]byte(`{"data":[{"id":"cred1","name":"legado","type":"httpHeaderAuth"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	creds, err := c.GetCredentials(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "cred1", creds[0].ID)

	assert.Equal(t, []string{
		"GET /api/v1/credentials",
		"POST /api/v1/credentials",
		"GET /rest/credentials",
	}, sequence)
}

func TestGetCredentialsStopsOnHardRejection(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid key"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetCredentials(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "invalid key")
}

func TestDeleteCredentialIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	assert.NoError(t, c.DeleteCredential(context.Background(), "already-gone"))
}
