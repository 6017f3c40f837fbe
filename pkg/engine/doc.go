// Package engine ties the conversation core together. A Service loads a
// conversation's event log from storage, appends validated events through
// the order-key manager, imports provider responses and streams, executes
// unresolved tool calls, exports provider request bodies, and branches
// conversations. It owns no state beyond its collaborators.
package engine
