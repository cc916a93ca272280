// Package util provides small shared helpers used across the cluster and
// web-hook plugin packages, such as capping logged bodies.
package util
