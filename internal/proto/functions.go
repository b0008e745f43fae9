// Package proto holds the wire contract between the report client and the
// report store.
//
// The store exposes named functions behind a single unary gRPC method:
// the request is {function, body} and the response is {data}, both carried
// as google.protobuf.Struct. Failures travel as gRPC status codes.
package proto

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName  = "reportstore.v1.FunctionService"
	InvokeMethod = "/" + ServiceName + "/Invoke"

	fieldFunction = "function"
	fieldBody     = "body"
	fieldData     = "data"
)

// FunctionServer is implemented by the report store.
type FunctionServer interface {
	Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FunctionServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: InvokeMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FunctionServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// FunctionServiceDesc is registered on a grpc.Server by RegisterFunctionServer.
var FunctionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FunctionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    invokeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "reportstore/v1/functions.proto",
}

func RegisterFunctionServer(s grpc.ServiceRegistrar, srv FunctionServer) {
	s.RegisterService(&FunctionServiceDesc, srv)
}

// FunctionClient calls a store function by name.
type FunctionClient interface {
	Invoke(ctx context.Context, function string, body map[string]any, opts ...grpc.CallOption) (map[string]any, error)
}

type functionClient struct {
	cc grpc.ClientConnInterface
}

func NewFunctionClient(cc grpc.ClientConnInterface) FunctionClient {
	return &functionClient{cc: cc}
}

func (c *functionClient) Invoke(ctx context.Context, function string, body map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	req, err := NewRequest(function, body)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, InvokeMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return ResponseData(out), nil
}

// Normalize converts an arbitrary JSON-shaped value into the subset of Go
// types structpb accepts (map[string]any, []any, float64, string, bool, nil).
func Normalize(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal body: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func NewRequest(function string, body map[string]any) (*structpb.Struct, error) {
	norm, err := Normalize(body)
	if err != nil {
		return nil, err
	}
	bodyStruct, err := structpb.NewStruct(norm)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldFunction: structpb.NewStringValue(function),
		fieldBody:     structpb.NewStructValue(bodyStruct),
	}}, nil
}

// ParseRequest splits an invocation into its function name and body.
// A missing body is returned as an empty map.
func ParseRequest(req *structpb.Struct) (string, map[string]any) {
	fields := req.GetFields()
	function := fields[fieldFunction].GetStringValue()
	body := fields[fieldBody].GetStructValue().AsMap()
	if body == nil {
		body = map[string]any{}
	}
	return function, body
}

func NewResponse(data map[string]any) (*structpb.Struct, error) {
	norm, err := Normalize(data)
	if err != nil {
		return nil, err
	}
	dataStruct, err := structpb.NewStruct(norm)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldData: structpb.NewStructValue(dataStruct),
	}}, nil
}

func ResponseData(resp *structpb.Struct) map[string]any {
	data := resp.GetFields()[fieldData].GetStructValue().AsMap()
	if data == nil {
		data = map[string]any{}
	}
	return data
}
