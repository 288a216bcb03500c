// Package store keeps the calculator sessions of errprop-server in memory.
// Each session owns one propagation.Sequence; the store serialises every
// access to it and evicts sessions left untouched for longer than the TTL.
// Nothing is persisted: a restart starts from an empty store.
package store
