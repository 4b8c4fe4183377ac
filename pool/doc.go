// File: pool/doc.go
// Package pool
//
// Generic object pooling (SyncPool, a sync.Pool wrapper). No other
// package in this module imports it. All exported types are safe for
// concurrent use unless otherwise documented.
package pool
