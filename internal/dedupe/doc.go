// Package dedupe tracks recently written keys so persistence writes are
// applied at most once within a time window, even when a caller retries.
package dedupe
