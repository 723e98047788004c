// Package pool runs a function over a batch of work items with a fixed number
// of long-lived workers. Each pool slot owns one worker instance for the
// whole batch; items are dealt to slots round-robin. Failures stay with the
// item that produced them and never stop sibling items.
package pool
