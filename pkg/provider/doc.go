// Package provider converts event logs to and from the message shapes of
// LLM vendor APIs. Each vendor gets a Mapper in its own subpackage; the
// Registry looks them up by name. Mappers are pure: they never perform I/O,
// leaving transport to the caller.
package provider
