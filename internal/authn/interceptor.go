package authn

import (
	"context"

	"google.golang.org/grpc"
)

// UnaryInterceptor extracts the caller's identity from the TLS certificate
// and stores it in the context.
func UnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	id, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return handler(NewContext(ctx, id), req)
}

// StreamInterceptor extracts the caller's identity from the TLS certificate
// and stores it in the context.
func StreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	id, err := FromContext(ss.Context())
	if err != nil {
		return err
	}
	return handler(srv, &wrappedStream{ServerStream: ss, ctx: NewContext(ss.Context(), id)})
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
