// Package id provides Short, a 16-character hex identifier generator
// used to tag one webhook delivery attempt across its log lines.
//
// Short uses crypto/rand for randomness.
package id
