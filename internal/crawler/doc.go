// Package crawler implements the resumable crawl loop: the per-source step
// state machine, its checkpointing runner, the fetch contract with retry
// policy, and the raw page archive.
package crawler
