package engineclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
	"github.com/devjn1998/projetoEvolutionApiChatWoot/metric"
)

// NodePackage names an installable community node package and the label the
// UI shows for it.
type NodePackage struct {
	Name  string
	Label string
}

// RequiredPackages are the community node packages the standard agent graph
// depends on.
var RequiredPackages = []NodePackage{
	{Name: "@devlikeapro/n8n-nodes-chatwoot", Label: "ChatWoot"},
	{Name: "n8n-nodes-evolution-api", Label: "EvolutionAPI"},
}

// InstalledNode is one entry of the engine's node-type inventory.
type InstalledNode struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// InstallResult reports how a package installation ended. Installation is
// best effort: when no install endpoint works the result carries manual
// instructions instead of an error.
type InstallResult struct {
	Package      string
	Installed    bool
	NeedsManual  bool
	Instructions string
}

// ListInstalledNodes fetches the engine's node-type inventory. Engines that
// don't expose the endpoint yield an empty inventory rather than an error so
// capability detection can fall back gracefully.
func (c *Client) ListInstalledNodes(ctx context.Context) ([]InstalledNode, error) {
	var raw json.RawMessage
	err := c.call(ctx, "list_nodes", http.MethodGet, metric.PathCurrent, currentPrefix+"/nodes", nil, &raw)
	if err != nil {
		if errors.IsVersionMismatch(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var env struct {
		Data []InstalledNode `json:"data"`
	}
	if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil && env.Data != nil {
		return env.Data, nil
	}
	var bare []InstalledNode
	if jsonErr := json.Unmarshal(raw, &bare); jsonErr != nil {
		return nil, errors.WrapInvalid(jsonErr, "Client", "ListInstalledNodes", "decode node inventory")
	}
	return bare, nil
}

// IsNodeInstalled reports whether any installed node type name contains the
// given fragment, case-insensitively.
func (c *Client) IsNodeInstalled(ctx context.Context, fragment string) (bool, error) {
	nodes, err := c.ListInstalledNodes(ctx)
	if err != nil {
		return false, err
	}
	needle := strings.ToLower(fragment)
	for _, n := range nodes {
		if strings.Contains(strings.ToLower(n.Name), needle) {
			return true, nil
		}
	}
	return false, nil
}

// InstallNodePackage tries the known community-package install endpoints in
// order. It never returns an error: engines without an install API get a
// manual-install result the caller can surface to the operator.
func (c *Client) InstallNodePackage(ctx context.Context, pkg NodePackage) InstallResult {
	body := map[string]string{"name": pkg.Name}
	endpoints := []struct {
		gen  string
		path string
	}{
		{metric.PathLegacy, legacyPrefix + "/community-packages"},
		{metric.PathCurrent, currentPrefix + "/community-packages"},
		{metric.PathLegacy, legacyPrefix + "/settings/community-packages"},
	}

	var lastErr error
	for _, ep := range endpoints {
		err := c.call(ctx, "install_package", http.MethodPost, ep.gen, ep.path, body, nil)
		if err == nil {
			c.logger.Info("community package installed", "package", pkg.Name, "path", ep.path)
			return InstallResult{Package: pkg.Name, Installed: true}
		}
		lastErr = err
		// A rejection other than a missing endpoint will repeat on every
		// path, but cheap to try the remaining candidates anyway.
	}

	c.logger.Warn("automatic package install unavailable", "package", pkg.Name, "err", lastErr)
	return InstallResult{
		Package:     pkg.Name,
		NeedsManual: true,
		Instructions: fmt.Sprintf(
			"Install %q manually: open Settings > Community Nodes in the engine UI and add the package %s.",
			pkg.Label, pkg.Name),
	}
}

// EnsureRequiredNodes checks each required community package and installs
// the missing ones. Inventory lookups and installs are best effort; the
// caller gets one result per package that was not already present.
func (c *Client) EnsureRequiredNodes(ctx context.Context) []InstallResult {
	var results []InstallResult
	for _, pkg := range RequiredPackages {
		installed, err := c.IsNodeInstalled(ctx, pkg.Name)
		if err != nil {
			c.logger.Warn("node inventory check failed", "package", pkg.Name, "err", err)
		}
		if installed {
			continue
		}
		results = append(results, c.InstallNodePackage(ctx, pkg))
	}
	return results
}
