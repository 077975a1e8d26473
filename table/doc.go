// Package table defines the table handle contract the repository builds on
// and its Bun implementation. A handle queues select and write operations and
// runs them, in order, when Execute is called.
package table
