package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		componentNamingPolicy(),
		dependencySanityPolicy(),
		versionFormatPolicy(),
		priorityOrderingPolicy(),
	}
}

func builtin(p Policy) Policy {
	now := time.Now()
	p.Enabled = true
	p.Builtin = true
	p.CreatedAt = now
	p.UpdatedAt = now
	return p
}

// componentNamingPolicy enforces component naming conventions.
func componentNamingPolicy() Policy {
	return builtin(Policy{
		Name:        "component-naming",
		Description: "Component names start with a lowercase letter and use lowercase letters, digits, '.', '_' or '-'",
		Severity:    SeverityError,
		Tags:        []string{"naming", "conventions"},
		Rego: `package lifecycle.policies.naming

deny contains violation if {
	name := input.component.name
	not regex.match("^[a-z][a-z0-9_.-]*$", name)
	violation := {
		"message": sprintf("component name '%s' must start with a lowercase letter and contain only lowercase letters, digits, '.', '_' or '-'", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	name := input.component.name
	count(name) > 64
	violation := {
		"message": sprintf("component name '%s' must not exceed 64 characters", [name]),
		"severity": "error",
	}
}`,
	})
}

// dependencySanityPolicy rejects self and duplicate dependencies.
func dependencySanityPolicy() Policy {
	return builtin(Policy{
		Name:        "dependency-sanity",
		Description: "A component may not depend on itself or list the same dependency twice",
		Severity:    SeverityError,
		Tags:        []string{"dependencies"},
		Rego: `package lifecycle.policies.dependencies

deny contains violation if {
	some dep in input.component.dependencies
	dep.name == input.component.name
	violation := {
		"message": sprintf("component '%s' depends on itself", [dep.name]),
		"severity": "error",
	}
}

deny contains violation if {
	deps := input.component.dependencies
	some i, j
	deps[i].name == deps[j].name
	i < j
	violation := {
		"message": sprintf("dependency '%s' is listed more than once", [deps[i].name]),
		"severity": "error",
	}
}`,
	})
}

// versionFormatPolicy warns about versions that are not semantic versions.
func versionFormatPolicy() Policy {
	return builtin(Policy{
		Name:        "version-format",
		Description: "Component versions, when set, follow MAJOR.MINOR.PATCH",
		Severity:    SeverityWarning,
		Tags:        []string{"metadata"},
		Rego: `package lifecycle.policies.version

deny contains violation if {
	version := input.component.version
	version != ""
	not regex.match("^v?[0-9]+\\.[0-9]+\\.[0-9]+([-+][0-9A-Za-z.-]+)?$", version)
	violation := {
		"message": sprintf("version '%s' is not a semantic version", [version]),
		"severity": "warning",
	}
}`,
	})
}

// priorityOrderingPolicy warns when a mandatory dependency is already
// registered with a priority that bulk operations run after this component.
func priorityOrderingPolicy() Policy {
	return builtin(Policy{
		Name:        "priority-ordering",
		Description: "Mandatory dependencies should not be ordered after their dependents",
		Severity:    SeverityWarning,
		Tags:        []string{"dependencies", "ordering"},
		Rego: `package lifecycle.policies.ordering

deny contains violation if {
	some dep in input.component.dependencies
	not dep.optional
	some entry in input.registry
	entry.name == dep.name
	entry.priority_level > input.component.priority_level
	violation := {
		"message": sprintf("component '%s' (priority %s) requires '%s' (priority %s), which is ordered after it", [input.component.name, input.component.priority, entry.name, entry.priority]),
		"severity": "warning",
	}
}`,
	})
}
