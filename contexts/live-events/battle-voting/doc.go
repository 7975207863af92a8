// Package battlevoting implements live voting on paired contests inside the
// live-events context.
//
// A vote passes the eligibility gate (contest open, credential bound to the
// contest's event), the per-source rate limiter and the ledger's atomic
// upsert. The tally is then recomputed from the ledger, the cached copy is
// invalidated and the fresh snapshot is broadcast to live viewers. Viewers
// attach through the live feed, which always starts with a full snapshot.
package battlevoting
