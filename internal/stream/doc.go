// Package stream implements the client side of the agent streaming protocol.
//
// # Wire Format
//
// A request is a JSON POST to the agent-execution endpoint:
//
//	{"task": "...", "agent_type": "ims", "language": "en", "file_context": "..."}
//
// The response body is a sequence of Server-Sent-Events-style records, each a
// single JSON chunk discriminated by chunk_type:
//
//	data: {"chunk_type":"thinking","content":"searching"}
//	data: {"chunk_type":"tool_call","tool_name":"search","tool_input":{"query":"X"}}
//	data: {"chunk_type":"tool_result","tool_name":"search","tool_output":"3 results"}
//	data: {"chunk_type":"text","content":"Found 3 matching issues."}
//	data: {"chunk_type":"done"}
//	data: [DONE]
//
// # Events
//
// Decoded chunks are Event values, a closed set of types (Thinking, ToolCall,
// ToolResult, Text, Sources, Artifact, Status, Error, Done). Consumers switch
// on the concrete type.
//
// # Errors
//
// A malformed or unknown chunk is logged and skipped by Reader. Non-2xx
// responses surface as *StatusError from Client.Open. Cancelling the context
// passed to Open aborts the request and makes Next return the context error.
package stream
