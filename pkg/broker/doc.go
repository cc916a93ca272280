// Package broker holds the external interface contracts this plugin is
// written against: the shapes of Session, Client and Publish the host
// broker lowers MQTT traffic into, the NodeId/ClientId/Topic primitives,
// and the Runtime surface (typed config loading) the host provides.
//
// Nothing in this package parses an MQTT packet or terminates a TCP
// connection — that is the host's job. This package exists so the rest of
// the module can be written, and tested, against stable Go types without
// pulling in a real broker implementation.
package broker
