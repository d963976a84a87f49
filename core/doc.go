// Package core provides the foundational domain types and execution contexts
// shared by every layer of the agent. It defines:
//
//   - Conversation data (Message, History, ToolCall, AssistantTurn, ToolResult)
//   - The error taxonomy separating turn-fatal from locally recovered failures
//   - RunContext / ToolContext (request scope, credentials, tool sandboxing)
//   - The progress side channel (ProgressSink, ProgressEvent, Stage)
//   - TurnLimiter bounding the tool-calling loop
//
// The package intentionally keeps provider, tool and transport concerns out of
// scope so that higher layers can depend on it without cycles.
package core
