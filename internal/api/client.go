package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client talks to a daemon over its Unix domain socket.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// Dial connects to the daemon socket. The connection is established lazily
// on the first call.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, fullMethod(method), in, out)
}

func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	out := new(ListConversationsResponse)
	if err := c.invoke(ctx, "ListConversations", &ListConversationsRequest{}, out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	out := new(ListMessagesResponse)
	if err := c.invoke(ctx, "ListMessages", &ListMessagesRequest{ConversationID: conversationID}, out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// OpenConversation opens conversationID on behalf of viewID, which must be
// attached by a running WatchEvents stream.
func (c *Client) OpenConversation(ctx context.Context, viewID, conversationID string) error {
	return c.invoke(ctx, "OpenConversation", &ConversationRequest{ViewID: viewID, ConversationID: conversationID}, new(Empty))
}

func (c *Client) CloseConversation(ctx context.Context, viewID, conversationID string) error {
	return c.invoke(ctx, "CloseConversation", &ConversationRequest{ViewID: viewID, ConversationID: conversationID}, new(Empty))
}

func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (string, error) {
	out := new(SendMessageResponse)
	err := c.invoke(ctx, "SendMessage", &SendMessageRequest{ConversationID: conversationID, Content: content}, out)
	return out.CorrelationID, err
}

func (c *Client) ResendMessage(ctx context.Context, correlationID string) (string, error) {
	out := new(SendMessageResponse)
	err := c.invoke(ctx, "ResendMessage", &ResendMessageRequest{CorrelationID: correlationID}, out)
	return out.CorrelationID, err
}

func (c *Client) CreateConversation(ctx context.Context, subject, initialMessage string) (string, error) {
	out := new(CreateConversationResponse)
	err := c.invoke(ctx, "CreateConversation", &CreateConversationRequest{Subject: subject, InitialMessage: initialMessage}, out)
	return out.ConversationID, err
}

func (c *Client) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	out := new(GetStatusResponse)
	if err := c.invoke(ctx, "GetStatus", &GetStatusRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Healthy asks the standard health service whether the Chat service is
// serving. The check travels over the json codec like every other call.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// EventStream is the client half of WatchEvents.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event.
func (s *EventStream) Recv() (*Event, error) {
	evt := new(Event)
	if err := s.stream.RecvMsg(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// WatchEvents opens an event stream. Cancel ctx to end it.
func (c *Client) WatchEvents(ctx context.Context, req *WatchEventsRequest) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &ChatServiceDesc.Streams[0], fullMethod("WatchEvents"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
