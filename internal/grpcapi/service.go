package grpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name, matching the path a
// .proto-based client/server would use had protoc generation been available.
const ServiceName = "judgerun.v1.JudgeRun"

func submitJudgeRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SubmitJudgeRunRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).SubmitJudgeRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/SubmitJudgeRun"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).SubmitJudgeRun(ctx, req.(*SubmitJudgeRunRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getJobStateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetJobStateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).GetJobState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/GetJobState"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).GetJobState(ctx, req.(*GetJobStateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func cancelJudgeRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelJudgeRunRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).CancelJudgeRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/CancelJudgeRun"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).CancelJudgeRun(ctx, req.(*CancelJudgeRunRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// streamJobStateServer adapts grpc.ServerStream to the typed send/context
// signature Server.StreamJobState expects.
type streamJobStateServer struct {
	grpc.ServerStream
}

func (s *streamJobStateServer) send(resp *StreamJobStateResponse) error {
	return s.SendMsg(resp)
}

func streamJobStateHandler(srv any, stream grpc.ServerStream) error {
	in := new(StreamJobStateRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	wrapped := &streamJobStateServer{ServerStream: stream}
	return srv.(*Server).StreamJobState(in, wrapped.send, stream.Context())
}

// ServiceDesc is the hand-written analogue of what protoc-gen-go-grpc would
// generate from a judgerun.proto; it registers the same four RPCs
// (3 unary, 1 server-streaming) against the JSON codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitJudgeRun", Handler: submitJudgeRunHandler},
		{MethodName: "GetJobState", Handler: getJobStateHandler},
		{MethodName: "CancelJudgeRun", Handler: cancelJudgeRunHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamJobState", Handler: streamJobStateHandler, ServerStreams: true},
	},
	Metadata: "judgerun/v1/judgerun.proto",
}

// RegisterServer wires an implementation into a *grpc.Server.
func RegisterServer(s *grpc.Server, impl *Server) {
	s.RegisterService(&ServiceDesc, impl)
}
