// Package solana wraps the external Solana command-line collaborator. All
// ledger access in this system goes through blocking subprocess invocations
// of the solana / solana-keygen binaries; this package owns command
// construction and the text-output parsing contracts (balance tokens and the
// "Program Id:" deployment marker). It never speaks the RPC wire protocol
// itself.
package solana
