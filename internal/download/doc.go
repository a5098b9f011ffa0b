// Package download implements the per-video fetch pipeline: manifest
// resolution, bounded-concurrency segment transfer with AES decryption, a
// crash-safe per-segment completion ledger, container concatenation, and
// the optional transcode handoff. Progress propagates through a callback
// so the presentation layer stays external.
package download
