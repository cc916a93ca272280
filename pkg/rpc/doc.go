// Package rpc is the peer RPC fabric: a pooled gRPC client per cluster
// peer plus the server side that receives a peer's call and hands it
// straight to a Receiver (the cluster plugin's Shared); no
// GrpcMessageReceived hook event is dispatched on the bus for it.
//
// The wire payload (Message/Reply) is a tagged union shaped as a plain
// Go struct rather than a .proto-generated type — see DESIGN.md for why
// a hand-rolled codec stands in for protoc output here. It still rides
// over a real google.golang.org/grpc.ClientConn/Server, registered
// through a codec that marshals with encoding/json instead of
// protobuf's wire format.
package rpc
