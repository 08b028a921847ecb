// Package boardservice is the community board of Rude Friend: posts with
// optional polls, one vote per member or guest IP, and per-option tallies
// kept in step with the vote ledger.
//
// Domain and application code stay decoupled from runtime concerns through
// ports; adapters and the platform layer supply storage, transport and
// metrics.
package boardservice
