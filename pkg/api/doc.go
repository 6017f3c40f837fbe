// Package api defines the vendor-agnostic event model of a conversation.
//
// An [Event] is one turn authored by a [Role] and holds an ordered list of
// typed [Segment] values: text, tool calls, tool results, reasoning traces,
// and built-in tool invocations (web search, code interpreter). A tool call
// and its result are paired by id equality, possibly across events.
//
// [EventLog] keeps events in order and indexes tool calls so that orphan
// results are rejected and unresolved calls can be listed. [DatabaseEvent]
// adds the conversation id and order key used by the persistence layer.
//
// The package performs no I/O. Errors are reported as [*APIError] values and
// event validation returns a [ValidationResult] listing every violation.
package api
