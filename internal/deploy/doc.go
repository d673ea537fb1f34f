// Package deploy implements the idempotent provisioning pipeline: toolchain
// precondition checks, network setup, key-material creation, program build,
// deployment, on-chain account provisioning and one-time initialization.
// Stage results are threaded through an immutable Result value; the persisted
// deployment record is the sole resume signal, so a completed run is never
// repeated.
package deploy
