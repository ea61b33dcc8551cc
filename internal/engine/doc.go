// Package engine implements the LifeSignal contact sync engine.
//
// The engine owns one signed-in user's snapshot of relationship records.
// It takes commands from the UI (add and remove contacts, edit roles,
// ping, alert, check in), performs them against the remote contact
// service, and folds the results, along with server-pushed changes, into
// the snapshot.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// Every snapshot change is a mutation enqueued to one FIFO queue and
// applied by a single goroutine. This ensures:
//   - command results and stream changes never interleave mid-merge
//   - each applied mutation is persisted before it becomes visible
//   - Version increases by exactly one per applied mutation
//
// Command Flow:
//  1. A command takes the command slot (commands run one at a time)
//  2. It validates against the current snapshot
//  3. It calls the remote, outside the writer loop, under a timeout
//  4. It enqueues a mutation carrying the remote result
//  5. The writer merges, saves the whole snapshot, swaps the pointer and
//     publishes a View
//
// Remote failures are not applied locally. The exception is role edits,
// which apply at once as Pending and are confirmed or reverted.
//
// Readers:
// Snapshot, View and Observe read an immutable snapshot through an atomic
// pointer and never wait for the writer.
package engine
