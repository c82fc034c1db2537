package rpc

import (
	"context"
	"fmt"

	"distributed-nlm/internal/domain"
	"distributed-nlm/internal/infra/codec"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "nlm.v1.LockService"

const (
	methodLock   = "/" + ServiceName + "/Lock"
	methodUnlock = "/" + ServiceName + "/Unlock"
	methodTest   = "/" + ServiceName + "/Test"
	methodList   = "/" + ServiceName + "/List"
)

// LockRequest carries a lock, unlock or test call.
type LockRequest struct {
	FileID []byte
	Holder []byte
	Offset uint64
	Length uint64
}

func (m *LockRequest) appendWire(b []byte) ([]byte, error) {
	b = appendBytesField(b, 1, m.FileID)
	b = appendBytesField(b, 2, m.Holder)
	b = appendVarintField(b, 3, m.Offset)
	b = appendVarintField(b, 4, m.Length)
	return b, nil
}

func (m *LockRequest) consumeWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytesField(typ, b, &m.FileID)
		case 2:
			return consumeBytesField(typ, b, &m.Holder)
		case 3:
			return consumeVarintField(typ, b, &m.Offset)
		case 4:
			return consumeVarintField(typ, b, &m.Length)
		}
		return 0
	})
}

// LockReply is returned when the call succeeded. Failures travel as gRPC
// status errors.
type LockReply struct {
	Result string
}

func (m *LockReply) appendWire(b []byte) ([]byte, error) {
	return appendBytesField(b, 1, []byte(m.Result)), nil
}

func (m *LockReply) consumeWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 {
			return 0
		}
		var v []byte
		n := consumeBytesField(typ, b, &v)
		m.Result = string(v)
		return n
	})
}

type ListRequest struct {
	FileID []byte
}

func (m *ListRequest) appendWire(b []byte) ([]byte, error) {
	return appendBytesField(b, 1, m.FileID), nil
}

func (m *ListRequest) consumeWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 {
			return 0
		}
		return consumeBytesField(typ, b, &m.FileID)
	})
}

type ListReply struct {
	Locks []domain.HeldLock
}

func (m *ListReply) appendWire(b []byte) ([]byte, error) {
	for _, held := range m.Locks {
		rec, err := codec.Proto{}.Encode(held.Record)
		if err != nil {
			return nil, err
		}
		var entry []byte
		entry = appendBytesField(entry, 1, []byte(held.Node))
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, rec)

		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b, nil
}

func (m *ListReply) consumeWire(b []byte) error {
	var entryErr error
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 {
			return 0
		}
		var entry []byte
		n := consumeBytesField(typ, b, &entry)
		if n <= 0 {
			return n
		}
		held, err := consumeHeldLock(entry)
		if err != nil {
			entryErr = err
			return -1
		}
		m.Locks = append(m.Locks, held)
		return n
	})
	if entryErr != nil {
		return fmt.Errorf("held lock %d: %w", len(m.Locks), entryErr)
	}
	return err
}

func consumeHeldLock(b []byte) (domain.HeldLock, error) {
	var (
		held   domain.HeldLock
		node   []byte
		record []byte
	)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeBytesField(typ, b, &node)
		case 2:
			return consumeBytesField(typ, b, &record)
		}
		return 0
	})
	if err != nil {
		return held, err
	}
	held.Node = string(node)
	if held.Record, err = (codec.Proto{}).Decode(record); err != nil {
		return held, err
	}
	return held, nil
}

// LockServiceServer is the server API for nlm.v1.LockService.
type LockServiceServer interface {
	Lock(context.Context, *LockRequest) (*LockReply, error)
	Unlock(context.Context, *LockRequest) (*LockReply, error)
	Test(context.Context, *LockRequest) (*LockReply, error)
	List(context.Context, *ListRequest) (*ListReply, error)
}

// RegisterLockServiceServer registers srv on s.
func RegisterLockServiceServer(s grpc.ServiceRegistrar, srv LockServiceServer) {
	s.RegisterService(&LockServiceDesc, srv)
}

func unaryHandler[Req, Resp any](fullMethod string, call func(LockServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LockServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LockServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LockServiceDesc describes nlm.v1.LockService to grpc.
var LockServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Lock", Handler: unaryHandler(methodLock, LockServiceServer.Lock)},
		{MethodName: "Unlock", Handler: unaryHandler(methodUnlock, LockServiceServer.Unlock)},
		{MethodName: "Test", Handler: unaryHandler(methodTest, LockServiceServer.Test)},
		{MethodName: "List", Handler: unaryHandler(methodList, LockServiceServer.List)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nlm/v1/lock_service",
}
