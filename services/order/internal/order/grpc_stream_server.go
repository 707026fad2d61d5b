package order

import (
	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/orderflow/pkg/orderstream"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// OrderEventStreamServer serves the order event stream to terminals over gRPC.
type OrderEventStreamServer struct {
	hub    *Hub
	logger apt.Logger
}

func NewOrderEventStreamServer(hub *Hub, logger apt.Logger) *OrderEventStreamServer {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &OrderEventStreamServer{hub: hub, logger: logger}
}

// RegisterGRPCService registers this service with the gRPC server (apt.GRPCServiceRegistrar interface)
func (s *OrderEventStreamServer) RegisterGRPCService(server *grpc.Server) {
	orderstream.Register(server, s)
}

// Subscribe joins the requested channels and streams events until the
// terminal disconnects.
func (s *OrderEventStreamServer) Subscribe(req *orderstream.SubscribeRequest, stream orderstream.EventSender) error {
	channels := req.Channels()
	if len(channels) == 0 {
		return status.Error(codes.InvalidArgument, "restaurant_id or operator is required")
	}

	ctx := stream.Context()
	sub := s.hub.Join(req.TerminalID, channels)
	defer sub.Leave()

	if err := stream.Joined(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := stream.Send(evt); err != nil {
				s.logger.Errorf("failed to send event: %v", err)
				return err
			}
		}
	}
}
