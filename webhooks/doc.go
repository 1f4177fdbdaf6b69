// Package webhooks reconciles inbound provider callbacks against in-flight
// jobs by correlation id.
//
// Deliveries are deduped through a claim ledger before any job read, and the
// terminal write shares the job store's compare-and-set with the poll loop,
// so duplicate deliveries and poll/webhook races both collapse to a single
// applied outcome.
package webhooks
