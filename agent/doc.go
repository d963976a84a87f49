// Package agent is the request façade of the general purpose agent. It turns
// one chat request into a flow run:
//
//  1. Resolve the system prompt (static text or a provider)
//  2. Restore tool exchanges that earlier replies carried in their State
//  3. Run the turn loop (flow.Flow) against the capability registry
//  4. Return the final answer with a fresh State for the client to echo back
//
// Agent values are safe for concurrent use; every request owns its own
// RunContext and History.
package agent
