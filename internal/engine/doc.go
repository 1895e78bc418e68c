// Package engine implements the replication protocol engine that a
// controller drives.
//
// An Engine runs one session between a local database and a peer over a
// transport.Transport. The controller never looks inside a session: it
// starts engines, stops them and listens to their status changes.
//
// ARCHITECTURE:
//
// Lockstep Protocol:
// Every request is answered before the next one is sent, so a session
// needs no request table. Frames are CBOR, zstd-compressed when large,
// and numbered by a Clock so replies can be matched to requests.
//
//   - push: active side sends FrameRevs (changes since its push
//     checkpoint), passive side applies them and answers FrameAck
//   - pull: active side sends FrameSubscribe{Since, Limit}, passive side
//     answers FrameRevs; the active side applies them
//   - either side may send FrameError; the session ends after it
//
// The side whose Options contain an active mode (OneShot or Continuous)
// drives rounds. A one-shot session closes the transport with a normal
// close after its first round; a continuous one idles for the poll
// interval and repeats. The passive side answers until the connection
// closes.
//
// Status Reporting:
// Connecting at Start, Busy during rounds, Idle between them, Stopped at
// the end. Status changes are queued and delivered to the Delegate by a
// dedicated goroutine, tagged with the engine's Role.
//
// Checkpoints are stored per peer address in the local database, so a
// later session resumes where the previous one ended. Writes that would
// not change a document are skipped by the store, which is what lets a
// push+pull session converge.
package engine
