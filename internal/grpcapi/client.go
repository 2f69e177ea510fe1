package grpcapi

import (
	"context"
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Client is a thin hand-written stub over the JudgeRun service, the
// analogue of what protoc-gen-go-grpc's NewJudgeRunClient would generate.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the service at address with mutual TLS and the JSON codec.
func Dial(address string, tlsConf *tls.Config) (*Client, error) {
	conn, err := grpc.NewClient(
		address,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsConf)),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("grpcapi: dial %s: %w", address, err)
	}
	return &Client{conn: conn}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) SubmitJudgeRun(ctx context.Context, req *SubmitJudgeRunRequest) (*SubmitJudgeRunResponse, error) {
	out := new(SubmitJudgeRunResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/SubmitJudgeRun", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetJobState(ctx context.Context, req *GetJobStateRequest) (*GetJobStateResponse, error) {
	out := new(GetJobStateResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/GetJobState", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CancelJudgeRun(ctx context.Context, req *CancelJudgeRunRequest) (*CancelJudgeRunResponse, error) {
	out := new(CancelJudgeRunResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/CancelJudgeRun", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// JobStateStream is the receive side of StreamJobState.
type JobStateStream struct {
	stream grpc.ClientStream
}

func (s *JobStateStream) Recv() (*StreamJobStateResponse, error) {
	out := new(StreamJobStateResponse)
	if err := s.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StreamJobState(ctx context.Context, req *StreamJobStateRequest) (*JobStateStream, error) {
	desc := &ServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, "/"+ServiceName+"/StreamJobState")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &JobStateStream{stream: stream}, nil
}
