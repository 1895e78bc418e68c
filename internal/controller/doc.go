// Package controller creates, supervises and tears down replication
// sessions.
//
// A Replicator owns a primary engine that talks to the target and, when
// the target is another local database, a passive secondary engine that
// drives that database's side over a spliced loopback transport:
//
//	primary (push/pull as requested) <-- loopback --> secondary (passive/passive)
//
// Callers see only the primary's status. The secondary's level is used
// for one thing: the replicator keeps a reference to itself, and stays in
// its Registry, until both engines have stopped. The caller's reference is
// dropped by Free; Done is closed once both references are gone.
//
// Status changes from the two engines arrive on different goroutines.
// Each carries the engine's Role, and the replicator's shared state is
// held in atomics so the two can race safely.
//
// Server is the listening counterpart: it runs one passive engine per
// accepted connection.
package controller
