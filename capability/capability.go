// Package capability inspects the engine's installed node inventory to
// decide which credential types a provisioned agent should use. Engines with
// the community connector packages installed get the native credential
// types; bare engines fall back to generic header auth so provisioning still
// succeeds.
package capability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/config"
)

// Credential type identifiers understood by the engine.
const (
	TypePlatformNative = "chatwootApi"
	TypeModelNative    = "googleGenerativeAiApi"
	TypeHeaderAuth     = "httpHeaderAuth"
	TypeSheetsOAuth    = "googleSheetsOAuth2Api"
)

// Node-type fragments probed against the inventory.
const (
	platformNodeFragment = "n8n-nodes-chatwoot"
	modelNodeFragment    = "lmChatGoogleGemini"
)

// CredentialTypes is the resolved credential type per integration slot.
type CredentialTypes struct {
	Platform string `json:"platform"`
	Model    string `json:"model"`
	Sheets   string `json:"sheets"`
}

// Fallback returns the types used when the inventory cannot be read. Sheets
// has no generic alternative and always uses OAuth.
func Fallback() CredentialTypes {
	return CredentialTypes{
		Platform: TypeHeaderAuth,
		Model:    TypeHeaderAuth,
		Sheets:   TypeSheetsOAuth,
	}
}

// inventory abstracts the engine calls the detector needs.
type inventory interface {
	IsNodeInstalled(ctx context.Context, fragment string) (bool, error)
	Endpoint() config.Endpoint
}

type cacheEntry struct {
	types   CredentialTypes
	expires time.Time
}

// Detector resolves credential types and caches the answer per engine base
// URL, since the node inventory only changes when packages are installed.
type Detector struct {
	engine inventory
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewDetector creates a detector with the given cache TTL.
func NewDetector(engine inventory, ttl time.Duration, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Detector{
		engine: engine,
		ttl:    ttl,
		logger: logger.With("component", "capability"),
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
}

// DetectCredentialTypes resolves the credential types for the active engine.
// It never fails: inventory errors degrade to the generic fallback types and
// are not cached, so a recovered engine is probed again on the next call.
func (d *Detector) DetectCredentialTypes(ctx context.Context) CredentialTypes {
	key := d.engine.Endpoint().BaseURL

	d.mu.Lock()
	if entry, ok := d.cache[key]; ok && d.now().Before(entry.expires) {
		d.mu.Unlock()
		return entry.types
	}
	d.mu.Unlock()

	types := Fallback()
	degraded := false

	if installed, err := d.engine.IsNodeInstalled(ctx, platformNodeFragment); err != nil {
		degraded = true
		d.logger.Warn("platform node probe failed, using generic auth", "err", err)
	} else if installed {
		types.Platform = TypePlatformNative
	}

	if installed, err := d.engine.IsNodeInstalled(ctx, modelNodeFragment); err != nil {
		degraded = true
		d.logger.Warn("model node probe failed, using generic auth", "err", err)
	} else if installed {
		types.Model = TypeModelNative
	}

	if !degraded {
		d.mu.Lock()
		d.cache[key] = cacheEntry{types: types, expires: d.now().Add(d.ttl)}
		d.mu.Unlock()
	}

	d.logger.Info("credential types resolved",
		"platform", types.Platform, "model", types.Model, "sheets", types.Sheets)
	return types
}

// Invalidate drops the cached answer for the given base URL, used after an
// endpoint rotation or a package install.
func (d *Detector) Invalidate(baseURL string) {
	d.mu.Lock()
	delete(d.cache, baseURL)
	d.mu.Unlock()
}
