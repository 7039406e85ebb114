// Package registry is the authoritative record of every known tool: who owns
// it, whether it is reachable and whether an operator disabled it.
//
// Mutations are written through to a ports.ToolStore with a bounded timeout;
// store failures are logged and swallowed. On startup Load brings persisted
// tools back offline until their provider proves it is alive.
package registry
