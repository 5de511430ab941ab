// Package syncer keeps the local view of a Mysa account in step with the
// cloud.
//
// The Orchestrator discovers homes, zones and devices, seeds the state
// store from the REST API and then keeps it fresh two ways at once: a
// polling loop that applies HTTP snapshots every two minutes regardless of
// realtime health, and the realtime channel whose lifecycle it owns. A
// slower loop refreshes homes and electricity rates.
//
// Commands go out through IssueCommand, which validates the intent against
// the device's capability profile, marks the device as having a pending
// command and publishes the envelope.
package syncer
