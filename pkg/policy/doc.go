// Package policy gates component registration with Open Policy Agent (OPA)
// policies written in Rego.
//
// An Engine compiles built-in and custom policies and implements
// component.Admitter, so a registry configured with it evaluates every
// descriptor before admitting it. Violations with severity error or
// critical reject the registration with a *RejectionError; warnings are
// reported but never block.
//
// # Usage
//
//	eng, err := policy.NewEngine(ctx, policy.EngineConfig{
//	    Logger:    &logger,
//	    Inventory: func() []component.Info { return reg.List() },
//	})
//	if err != nil {
//	    return err
//	}
//	reg := component.NewRegistry(component.RegistryConfig{Admitter: eng})
//
// # Input document
//
// Policies see the candidate descriptor under input.component, the
// components already registered under input.registry and evaluation
// metadata under input.context:
//
//	{
//	  "component": {
//	    "name": "net",
//	    "version": "1.2.0",
//	    "priority": "high",
//	    "priority_level": 1,
//	    "dependencies": [{"name": "disk", "optional": false}]
//	  },
//	  "registry": [{"name": "disk", "priority": "low", "priority_level": 3, "status": "uninitialized"}],
//	  "context": {"environment": "production", "timestamp": "..."}
//	}
//
// # Built-in policies
//
//   - component-naming (error): lowercase names of at most 64 characters
//   - dependency-sanity (error): no self or duplicate dependencies
//   - version-format (warning): versions follow MAJOR.MINOR.PATCH
//   - priority-ordering (warning): mandatory dependencies are not ordered
//     after their dependents
//
// # Custom policies
//
// Custom policies define a deny set in Rego v1 syntax. Each member is
// either a string or an object with a message field:
//
//	package custom.idle
//
//	deny contains msg if {
//	    input.component.priority == "idle"
//	    msg := sprintf("%s may not run at idle priority", [input.component.name])
//	}
//
// Engine.LoadPolicies reads .rego files and JSON or YAML definitions from
// files or directories. Engine.Watch reloads them when they change.
package policy
