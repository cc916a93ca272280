package rpc

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/brokerfed/cluster/pkg/logging"
	"google.golang.org/grpc"
)

// Server is the listening side of the peer fabric: it accepts peers'
// Send calls and hands each Message directly to a Receiver, typically
// the cluster plugin's Shared component; the hook bus is not involved.
type Server struct {
	grpcServer *grpc.Server
	log        *slog.Logger
}

// NewServer constructs a Server that dispatches inbound messages to recv.
func NewServer(recv Receiver) *Server {
	gs := grpc.NewServer()
	gs.RegisterService(&ServiceDesc, recv)
	return &Server{grpcServer: gs, log: logging.Nop()}
}

// SetLogger installs the logger used for lifecycle diagnostics.
func (s *Server) SetLogger(l *slog.Logger) {
	if l == nil {
		l = logging.Nop()
	}
	s.log = l
}

// Serve binds addr and blocks serving peer RPCs until Stop is called.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.ServeListener(lis)
}

// ServeListener serves peer RPCs on an already-bound listener, letting a
// caller pick its own port (tests) before handing control to Serve's loop.
func (s *Server) ServeListener(lis net.Listener) error {
	s.log.Info("peer rpc server listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the server, waiting for in-flight RPCs to finish.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
