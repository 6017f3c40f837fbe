// Package storage defines the persistence boundary for conversation events
// and the helpers shared by its adapters (memory, postgres, sqlite).
//
// The only invariant adapters must enforce is uniqueness of the pair
// (conversation id, order key); a violation is reported as [ErrConflict].
// Order keys compare byte-wise. Reads of a conversation owned by a different
// tenant than the one in the context report [ErrNotFound].
package storage
