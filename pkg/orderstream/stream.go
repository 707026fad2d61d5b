// Package orderstream defines the server-streaming gRPC contract terminals use
// to receive order events. Messages travel as JSON through a registered codec,
// so neither side needs generated stubs.
package orderstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/appetiteclub/orderflow/pkg/event"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
)

const (
	CodecName   = "json"
	ServiceName = "orderflow.OrderEvents"
	MethodName  = "Subscribe"
	FullMethod  = "/" + ServiceName + "/" + MethodName
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

// SubscribeRequest joins channels. RestaurantID joins that restaurant's
// channel, Operator joins the global operator channel. Both may be set.
type SubscribeRequest struct {
	TerminalID   string `json:"terminal_id,omitempty"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	Operator     bool   `json:"operator,omitempty"`
}

// Channels returns the channel names the request joins.
func (r SubscribeRequest) Channels() []string {
	var channels []string
	if r.RestaurantID != "" {
		channels = append(channels, event.RestaurantTopic(r.RestaurantID))
	}
	if r.Operator {
		channels = append(channels, event.OperatorTopic)
	}
	return channels
}

// EventSender is the server half of a subscription stream. Joined must be
// called once the terminal is attached to its channels; Open on the client
// side does not return before that.
type EventSender interface {
	Context() context.Context
	Joined() error
	Send(*event.OrderEvent) error
}

// Server is implemented by the order service.
type Server interface {
	Subscribe(*SubscribeRequest, EventSender) error
}

type serverStream struct {
	grpc.ServerStream
}

func (s serverStream) Joined() error {
	return s.ServerStream.SendHeader(metadata.MD{})
}

func (s serverStream) Send(evt *event.OrderEvent) error {
	return s.ServerStream.SendMsg(evt)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(SubscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(Server).Subscribe(req, serverStream{stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodName,
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "orderflow/orderstream",
}

// Register attaches srv to a gRPC server.
func Register(s *grpc.Server, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

// Subscription is the client half of a subscription stream.
type Subscription struct {
	stream grpc.ClientStream
}

// Open starts a subscription on conn, sends the join request and waits until
// the server reports the channels as joined.
func Open(ctx context.Context, conn grpc.ClientConnInterface, req SubscribeRequest) (*Subscription, error) {
	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], FullMethod, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, fmt.Errorf("cannot open order event stream: %w", err)
	}
	if err := stream.SendMsg(&req); err != nil {
		return nil, fmt.Errorf("cannot send subscribe request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("cannot close subscribe request: %w", err)
	}
	if _, err := stream.Header(); err != nil {
		return nil, fmt.Errorf("order event stream not joined: %w", err)
	}
	return &Subscription{stream: stream}, nil
}

// Recv blocks until the next event arrives.
func (s *Subscription) Recv() (*event.OrderEvent, error) {
	evt := new(event.OrderEvent)
	if err := s.stream.RecvMsg(evt); err != nil {
		return nil, err
	}
	return evt, nil
}
