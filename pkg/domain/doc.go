/*
Package domain contains the core data model of the tool broker.

It defines what a tool is, how its registry record looks, and the error
taxonomy shared by the registry, the broker and every adapter. This package
is kept free of I/O and persistence concerns.

# Key Entities

  - ToolDefinition: Name, description and input schema announced by a provider.
  - ToolStatus: The registry record wrapping a definition with owner, liveness and operator state.
  - ToolView: The annotated representation used by listings and diagnostics.
  - LifecycleHooks: Callbacks that let observers follow executions, fanouts and connections.
*/
package domain
