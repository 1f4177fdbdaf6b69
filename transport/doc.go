// Package transport carries provider traffic. Adapters are registered by
// kind; REST is the default and the only kind the built-in providers use.
package transport
