// Package command exposes the dispatch operations as go-command messages so
// hosts can route them through a bus or queue worker.
package command
