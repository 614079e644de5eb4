// Package stores provides flag and run persistence for the fix
// orchestrator. It includes a SQLite-backed durable store with WAL mode
// and embedded migrations, and an in-process session store whose flags
// live only until the process exits. Both satisfy the FlagStore contract
// consumed by the fix gate.
package stores
