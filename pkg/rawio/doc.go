// Package rawio defines the narrow raw I/O capability the orchestrator
// drives: byte-blob access to named resources plus load/unload of plugin
// units by handle. The contract deliberately mirrors a file-descriptor style
// API (open/read/write/seek/truncate/close) so that implementations can sit
// on a local filesystem, an in-memory table, or a remote transport without
// the sequencing core knowing the difference.
package rawio
