// Package chatsync defines the neutral contracts shared by the cache synchronization
// engine, the transport adapters that talk to the chat service, and presentation code
// that reads the caches.
//
// Nothing in this package performs I/O. Transport adapters implement Remote; the engine
// consumes it and exposes cached Users, Rooms, and Messages.
package chatsync
