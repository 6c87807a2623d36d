package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rentchat.v1.Chat"

// ChatServer is the daemon side of the Chat service.
type ChatServer interface {
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	OpenConversation(context.Context, *ConversationRequest) (*Empty, error)
	CloseConversation(context.Context, *ConversationRequest) (*Empty, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	ResendMessage(context.Context, *ResendMessageRequest) (*SendMessageResponse, error)
	CreateConversation(context.Context, *CreateConversationRequest) (*CreateConversationResponse, error)
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	WatchEvents(*WatchEventsRequest, EventSender) error
}

// EventSender is the server half of a WatchEvents stream.
type EventSender interface {
	Send(*Event) error
	Context() context.Context
}

// ChatServiceDesc describes the Chat service for grpc.Server.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListConversations", ChatServer.ListConversations),
		unary("ListMessages", ChatServer.ListMessages),
		unary("OpenConversation", ChatServer.OpenConversation),
		unary("CloseConversation", ChatServer.CloseConversation),
		unary("SendMessage", ChatServer.SendMessage),
		unary("ResendMessage", ChatServer.ResendMessage),
		unary("CreateConversation", ChatServer.CreateConversation),
		unary("GetStatus", ChatServer.GetStatus),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchEventsRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ChatServer).WatchEvents(in, &eventSender{stream})
			},
		},
	},
	Metadata: "rentchat/v1/chat",
}

// RegisterChatServer attaches srv to a gRPC server.
func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(ChatServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(ChatServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

type eventSender struct {
	grpc.ServerStream
}

func (s *eventSender) Send(evt *Event) error {
	return s.ServerStream.SendMsg(evt)
}
