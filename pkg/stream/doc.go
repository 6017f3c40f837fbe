// Package stream consumes and produces the event stream protocol: SSE
// "data:" lines, each carrying one JSON frame that describes an incremental
// change to an in-flight event.
//
// Decoder is the transport layer. It turns arbitrary byte chunks into one
// JSON value per data line. Processor interprets those values as frames and
// applies them to a Session, which owns the in-flight events of exactly one
// stream. Processor.Fold drives a provider.StreamFolder over a provider's
// native stream instead. Writer is the producing side.
package stream
