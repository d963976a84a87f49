// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing run and tool contexts, conversation
// histories and tool calls. They are not intended for production usage.
package testutil
