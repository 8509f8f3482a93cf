// Package cache provides a small thread-safe TTL cache with a size bound.
//
// Entries expire ttl after they were last set. When the cache is full the
// least recently set entry is evicted. A background goroutine sweeps expired
// entries once a minute; call Close to stop it.
package cache
