// Package stores provides the lifecycle journal: a SQLite-backed record of
// bulk runs, per-component outcomes, individual transitions and registry
// membership changes. The schema is applied with embedded migrations, and
// Journal adapts a Store to component.Observer so a registry can write to
// it directly.
package stores
