package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nik0lai/evidence-priming/internal/staircase"
)

// #region service-desc
// ServiceDesc describes the staircase service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StaircaseServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Create", Handler: unaryHandler("Create", StaircaseServer.Create)},
		{MethodName: "Record", Handler: unaryHandler("Record", StaircaseServer.Record)},
		{MethodName: "Current", Handler: unaryHandler("Current", StaircaseServer.Current)},
		{MethodName: "Threshold", Handler: unaryHandler("Threshold", StaircaseServer.Threshold)},
		{MethodName: "Close", Handler: unaryHandler("Close", StaircaseServer.Close)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "staircase/v1/staircase.proto",
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

type unaryMethod func(StaircaseServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StaircaseServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(StaircaseServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion service-desc

// #region struct-codec
// toStruct encodes a JSON-tagged payload as a protobuf Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return out, nil
}

// decodeRequest is fromStruct for request payloads; failures are ErrInvalidRequest.
func decodeRequest(s *structpb.Struct, v interface{}) error {
	if err := fromStruct(s, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// fromStruct decodes a protobuf Struct into a JSON-tagged payload.
func fromStruct(s *structpb.Struct, v interface{}) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// #endregion struct-codec

// #region status-mapping
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, staircase.ErrConfiguration), errors.Is(err, ErrInvalidRequest):
		code = codes.InvalidArgument
	case errors.Is(err, ErrSessionNotFound):
		code = codes.NotFound
	case errors.Is(err, staircase.ErrNotConverged):
		code = codes.FailedPrecondition
	case errors.Is(err, staircase.ErrInsufficientReversals):
		code = codes.OutOfRange
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// fromStatus maps a status error back onto the package sentinels.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.InvalidArgument:
		sentinel = staircase.ErrConfiguration
		if strings.HasPrefix(st.Message(), ErrInvalidRequest.Error()) {
			sentinel = ErrInvalidRequest
		}
	case codes.NotFound:
		sentinel = ErrSessionNotFound
	case codes.FailedPrecondition:
		sentinel = staircase.ErrNotConverged
	case codes.OutOfRange:
		sentinel = staircase.ErrInsufficientReversals
	default:
		return err
	}
	return fmt.Errorf("%w (remote: %s)", sentinel, st.Message())
}

// #endregion status-mapping
