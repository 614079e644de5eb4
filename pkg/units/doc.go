// Package units hosts the WebAssembly plugin units managed by plugind.
// The Registry wraps a wazero runtime and exposes the find/unload/load
// contract the reload sequencer drives. A YAML catalog can pin unit
// checksums so a tampered module is refused before instantiation.
package units
