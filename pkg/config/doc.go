// Package config loads process configuration and component manifests.
//
// # Configuration
//
// Config is read from YAML over Default and validated with struct tags:
//
//	registry:
//	  max_components: 64
//	  max_dependency_depth: 32
//	telemetry:
//	  logging:
//	    level: info
//	journal:
//	  enabled: true
//	  path: /var/lib/lifecycle/journal.db
//	policy:
//	  paths: [/etc/lifecycle/policies]
//	  watch: true
//
// # Manifests
//
// A manifest declares components in CUE, YAML or JSON. Every manifest is
// checked against the built-in #Manifest CUE schema, so CUE sources can
// use the full language while YAML sources get the same validation:
//
//	name: "edge"
//	components: [
//	    {name: "net", priority: "high"},
//	    {name: "web", requires: ["net"], uses: ["cache"]},
//	]
//
// Manifest.Descriptors turns specs into component.Descriptor values. The
// caller supplies the lifecycle hooks through a CallbackFactory;
// SimulatedCallbacks provides scripted hooks for dry runs.
package config
