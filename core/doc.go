// Package core contains the canonical dispatch domain: adapter specs, the
// declarative payload schema, credential resolution, task state rules, and
// result extraction. Lower-level transport and store adapters depend on this
// package; core must not depend on provider-specific or transport-specific
// adapters.
package core
