// Package sqlstore provides the durable bun-backed stores: jobs, user
// provider keys, and the webhook delivery ledger.
package sqlstore
