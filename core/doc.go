// Package core provides the foundational domain types shared by every layer
// of the agent orchestration runtime. It defines:
//
//   - ToolDefinition / ToolResponse (the uniform tool contract)
//   - Plan / PlanStep (the Planner's validated output)
//   - Session / ExecutionStep (per-request lifecycle and its status machine)
//   - StreamEvent (the ordered progress events pushed to clients)
//   - The error taxonomy used across planning, execution and transport
//
// The package intentionally keeps implementation concerns (registry storage,
// dispatch, transports, model providers) out of scope so that every other
// package can depend on it without cycles.
package core
