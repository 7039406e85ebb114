// Package mcp exposes the broker's visible tools to Model Context Protocol
// clients over stdio or SSE. Tool calls are forwarded to the broker and block
// until the owning provider answers.
package mcp
