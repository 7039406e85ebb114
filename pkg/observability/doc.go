/*
Package observability turns broker lifecycle hooks into Prometheus metrics
and structured log lines.

Metrics are registered on a dedicated registry so several brokers (or tests)
can coexist in one process. Handler serves them in the Prometheus text format.
*/
package observability
