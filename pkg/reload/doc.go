// Package reload executes the ordered step sequences that force the
// plugin runtime to observe a configuration transition. Steps run
// strictly one after another; failures are collected or logged, never
// fatal, because a half-applied sequence still moves the runtime closer
// to a working state than an aborted one.
package reload
