// Package install registers bots against connector configurations.
//
// Registry.InstallAll validates the declared configurations, builds every
// bot and runs an Installer per bot. The Installer reconciles each declared
// configuration with the persisted one, instantiates the connector, persists
// the application configuration and mounts the connector on the router.
package install

import (
	"maps"

	"github.com/garyellow/convobot-go/internal/connector"
)

// Reconcile merges a declared configuration with the persisted configuration
// of the same connector id. It never mutates its inputs.
//
// Structural fields (id, type, owner type) always come from declared.
// For presentation fields (name, base URL, path) and parameters, the
// persisted value wins when an operator edited the record and declared wins
// otherwise; a value only present in the persisted record is always kept.
func Reconcile(declared connector.Configuration, existingByConnectorID map[string]connector.Configuration) connector.Configuration {
	existing, ok := existingByConnectorID[declared.ConnectorID]
	if !ok {
		return declared.Clone()
	}

	merged := declared.Clone()
	merged.ManuallyModified = existing.ManuallyModified

	pick := func(declaredValue, existingValue string) string {
		switch {
		case existingValue == "":
			return declaredValue
		case declaredValue == "" || existing.ManuallyModified:
			return existingValue
		default:
			return declaredValue
		}
	}
	merged.Name = pick(declared.Name, existing.Name)
	merged.BaseURL = pick(declared.BaseURL, existing.BaseURL)
	merged.Path = pick(declared.Path, existing.Path)

	params := make(map[string]string, len(declared.Parameters)+len(existing.Parameters))
	maps.Copy(params, existing.Parameters)
	for k, v := range declared.Parameters {
		if _, edited := existing.Parameters[k]; edited && existing.ManuallyModified {
			continue
		}
		params[k] = v
	}
	if len(params) > 0 {
		merged.Parameters = params
	}
	return merged
}
