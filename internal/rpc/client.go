// internal/rpc/client.go
package rpc

import (
	"context"
	"errors"
	"fmt"

	"distributed-nlm/internal/domain"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Client calls a remote nlm.v1.LockService. It satisfies domain.LockManager,
// turning gRPC statuses back into domain.LockErrors.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

var _ domain.LockManager = (*Client)(nil)

// Dial creates a client for the nlmd at addr.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// Add OpenTelemetry Stats Handler for automatic trace propagation.
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nlmd at %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// fromStatus maps a gRPC error back to a domain.LockError.
func fromStatus(op string, fileID []byte, rec domain.LockRecord, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return domain.WrapException(op, fileID, "rpc failed", err)
	}
	switch st.Code() {
	case codes.Aborted:
		return domain.NewDenied(op, fileID, rec)
	case codes.NotFound:
		return domain.NewRangeUnavailable(op, fileID, rec)
	case codes.InvalidArgument:
		return domain.NewInvalid(op, fileID, errors.New(st.Message()))
	default:
		return domain.WrapException(op, fileID, "rpc failed", err)
	}
}

func (c *Client) invoke(ctx context.Context, method, op string, fileID []byte, rec domain.LockRecord) error {
	req := &LockRequest{FileID: fileID, Holder: rec.Holder, Offset: rec.Offset, Length: rec.Length}
	err := c.cc.Invoke(ctx, method, req, new(LockReply), callCodec())
	return fromStatus(op, fileID, rec, err)
}

func (c *Client) Lock(ctx context.Context, fileID []byte, rec domain.LockRecord) error {
	return c.invoke(ctx, methodLock, "lock", fileID, rec)
}

func (c *Client) Unlock(ctx context.Context, fileID []byte, rec domain.LockRecord) error {
	return c.invoke(ctx, methodUnlock, "unlock", fileID, rec)
}

func (c *Client) Test(ctx context.Context, fileID []byte, rec domain.LockRecord) error {
	return c.invoke(ctx, methodTest, "test", fileID, rec)
}

func (c *Client) List(ctx context.Context, fileID []byte) ([]domain.HeldLock, error) {
	reply := new(ListReply)
	err := c.cc.Invoke(ctx, methodList, &ListRequest{FileID: fileID}, reply, callCodec())
	if err != nil {
		return nil, fromStatus("list", fileID, domain.LockRecord{}, err)
	}
	return reply.Locks, nil
}
