package capability

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/config"
)

type fakeInventory struct {
	installed []string
	err       error
	probes    int
	baseURL   string
}

func (f *fakeInventory) IsNodeInstalled(_ context.Context, fragment string) (bool, error) {
	f.probes++
	if f.err != nil {
		return false, f.err
	}
	for _, name := range f.installed {
		if strings.Contains(strings.ToLower(name), strings.ToLower(fragment)) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeInventory) Endpoint() config.Endpoint {
	return config.Endpoint{BaseURL: f.baseURL}
}

func TestDetectCredentialTypes(t *testing.T) {
	tests := []struct {
		name      string
		installed []string
		want      CredentialTypes
	}{
		{
			name: "both connector packages installed",
			installed: []string{
				"@devlikeapro/n8n-nodes-chatwoot.chatWoot",
				"@n8n/n8n-nodes-langchain.lmChatGoogleGemini",
			},
			want: CredentialTypes{Platform: "chatwootApi", Model: "googleGenerativeAiApi", Sheets: "googleSheetsOAuth2Api"},
		},
		{
			name:      "bare engine",
			installed: nil,
			want:      CredentialTypes{Platform: "httpHeaderAuth", Model: "httpHeaderAuth", Sheets: "googleSheetsOAuth2Api"},
		},
		{
			name:      "only platform connector",
			installed: []string{"@devlikeapro/n8n-nodes-chatwoot.chatWoot"},
			want:      CredentialTypes{Platform: "chatwootApi", Model: "httpHeaderAuth", Sheets: "googleSheetsOAuth2Api"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInventory{installed: tt.installed, baseURL: "http://engine.local"}
			d := NewDetector(inv, time.Minute, nil)
			got := d.DetectCredentialTypes(context.Background())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectionDegradesButIsNotCached(t *testing.T) {
	inv := &fakeInventory{err: fmt.Errorf("engine unreachable"), baseURL: "http://engine.local"}
	d := NewDetector(inv, time.Minute, nil)

	got := d.DetectCredentialTypes(context.Background())
	assert.Equal(t, Fallback(), got, "probe failure degrades to generic auth")

	inv.err = nil
	inv.installed = []string{"@devlikeapro/n8n-nodes-chatwoot.chatWoot"}
	got = d.DetectCredentialTypes(context.Background())
	assert.Equal(t, "chatwootApi", got.Platform, "recovered engine is probed again")
}

func TestDetectionCachesPerBaseURL(t *testing.T) {
	inv := &fakeInventory{
		installed: []string{"@devlikeapro/n8n-nodes-chatwoot.chatWoot"},
		baseURL:   "http://engine-a.local",
	}
	d := NewDetector(inv, time.Minute, nil)

	d.DetectCredentialTypes(context.Background())
	probesAfterFirst := inv.probes
	require.Positive(t, probesAfterFirst)

	d.DetectCredentialTypes(context.Background())
	assert.Equal(t, probesAfterFirst, inv.probes, "second call served from cache")

	inv.baseURL = "http://engine-b.local"
	d.DetectCredentialTypes(context.Background())
	assert.Greater(t, inv.probes, probesAfterFirst, "new base URL is probed fresh")
}

func TestCacheExpiryAndInvalidation(t *testing.T) {
	inv := &fakeInventory{baseURL: "http://engine.local"}
	d := NewDetector(inv, time.Minute, nil)

	now := time.Now()
	d.now = func() time.Time { return now }

	d.DetectCredentialTypes(context.Background())
	first := inv.probes

	now = now.Add(2 * time.Minute)
	d.DetectCredentialTypes(context.Background())
	assert.Greater(t, inv.probes, first, "expired entry is re-probed")

	second := inv.probes
	d.Invalidate("http://engine.local")
	d.DetectCredentialTypes(context.Background())
	assert.Greater(t, inv.probes, second, "invalidation forces a re-probe")
}
