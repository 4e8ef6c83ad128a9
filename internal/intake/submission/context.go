// internal/intake/submission/context.go

// Package submission holds the shared state of one sales-note submission: an
// append-only key/value context plus the builder that derives the business
// fields a complete CRM submission needs.
package submission

import (
	"strings"

	"crm-intake-workers/internal/intake/note"
)

// Context is the accumulated state of one submission. Keys follow
// set-if-absent semantics: the first non-empty writer of a key wins and
// later writes are ignored, so enrichment steps can only fill gaps, never
// clobber observed data.
//
// Not safe for concurrent use; a submission runs on one goroutine.
type Context struct {
	values map[note.Key]string
	order  []note.Key
}

func NewContext() *Context {
	return &Context{values: make(map[note.Key]string)}
}

// Set stores value under key unless the key is already set or the trimmed
// value is empty. It reports whether the write happened; callers that care
// about ignored writes log the false case at debug level.
func (c *Context) Set(key note.Key, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if _, ok := c.values[key]; ok {
		return false
	}
	c.values[key] = value
	c.order = append(c.order, key)
	return true
}

// SetIfAbsent is Set under its merge-step name.
func (c *Context) SetIfAbsent(key note.Key, value string) bool {
	return c.Set(key, value)
}

func (c *Context) Get(key note.Key) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *Context) Has(key note.Key) bool {
	_, ok := c.values[key]
	return ok
}

// Value returns the value for key, or "" when absent.
func (c *Context) Value(key note.Key) string {
	return c.values[key]
}

// Keys returns the set keys in insertion order.
func (c *Context) Keys() []note.Key {
	out := make([]note.Key, len(c.order))
	copy(out, c.order)
	return out
}

// Snapshot returns a copy of every set key, for logging and persistence.
func (c *Context) Snapshot() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[string(k)] = v
	}
	return out
}
