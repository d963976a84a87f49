// Package model defines the provider-agnostic abstractions for streaming
// chat completions with tool calling.
//
// Core goals:
//   - Expose every provider as a stream of decoded Fragments (text, tool-call
//     increments, attachments) so the orchestrator never branches per vendor
//   - Normalize tool exposure (ToolDefinition) and request shape (Request)
//   - Facilitate deterministic testing (ScriptedModel)
//
// Providers (OpenAI compatible DIAL deployments, Anthropic) implement the
// Model interface in sub packages so higher layers stay decoupled from vendor SDKs.
package model
