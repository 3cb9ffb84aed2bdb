package grpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/moldesc/internal/application/calculation"
	"github.com/turtacn/moldesc/internal/domain/descriptor"
	"github.com/turtacn/moldesc/internal/domain/descriptor/catalog"
	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/moldesc/pkg/errors"
)

// ServiceName is the fully qualified name of the calculation service.
// Messages are google.protobuf.Struct values shaped like the HTTP API's JSON
// bodies.
const ServiceName = "moldesc.v1.Calculations"

// CalculationService is satisfied by *calculation.Service.
type CalculationService interface {
	Calculate(ctx context.Context, req calculation.Request) (*run.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (*run.Run, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error
}

// CalculationsServer is the server API of ServiceName.
type CalculationsServer interface {
	ListDescriptors(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DecodeDescriptors(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Calculate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(CalculationsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call structMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CalculationsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(CalculationsServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc describes ServiceName for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalculationsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListDescriptors", Handler: unaryHandler("ListDescriptors", CalculationsServer.ListDescriptors)},
		{MethodName: "DecodeDescriptors", Handler: unaryHandler("DecodeDescriptors", CalculationsServer.DecodeDescriptors)},
		{MethodName: "Calculate", Handler: unaryHandler("Calculate", CalculationsServer.Calculate)},
		{MethodName: "GetRun", Handler: unaryHandler("GetRun", CalculationsServer.GetRun)},
		{MethodName: "DeleteRun", Handler: unaryHandler("DeleteRun", CalculationsServer.DeleteRun)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "moldesc/v1/calculations.proto",
}

// Calculations implements CalculationsServer over the calculation use case.
type Calculations struct {
	svc    CalculationService
	logger logging.Logger
}

var _ CalculationsServer = (*Calculations)(nil)

func NewCalculations(svc CalculationService, log logging.Logger) *Calculations {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Calculations{svc: svc, logger: log}
}

// ListDescriptors takes {"modules": [...]} and answers like GET
// /api/v1/descriptors.
func (c *Calculations) ListDescriptors(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		Modules []string `json:"modules"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	entries, err := catalog.Entries(in.Modules...)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"descriptors": entries, "total": len(entries)})
}

// DecodeDescriptors takes {"descriptors": [...]} and answers like POST
// /api/v1/descriptors/decode.
func (c *Calculations) DecodeDescriptors(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		Descriptors []map[string]any `json:"descriptors"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	calc, err := catalog.CalculatorFromJSON(in.Descriptors)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]map[string]any, 0, calc.Len())
	for _, d := range calc.Descriptors() {
		out = append(out, map[string]any{"name": d.String(), "json": descriptor.ToJSON(d)})
	}
	return toStruct(map[string]any{"descriptors": out})
}

// Calculate takes a calculation request body and returns the finished run.
func (c *Calculations) Calculate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in calculation.Request
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}
	r, err := c.svc.Calculate(ctx, in)
	if err != nil {
		c.logger.Warn("Calculate request failed", logging.Err(err))
		return nil, toStatus(err)
	}
	return toStruct(r)
}

// GetRun takes {"id": "<uuid>"}.
func (c *Calculations) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := runID(req)
	if err != nil {
		return nil, err
	}
	r, err := c.svc.GetRun(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(r)
}

// DeleteRun takes {"id": "<uuid>"} and returns an empty struct.
func (c *Calculations) DeleteRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := runID(req)
	if err != nil {
		return nil, err
	}
	if err := c.svc.DeleteRun(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func runID(req *structpb.Struct) (uuid.UUID, error) {
	raw := req.GetFields()["id"].GetStringValue()
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid run id %q", raw)
	}
	return id, nil
}

// fromStruct decodes req into dst through its JSON form.
func fromStruct(req *structpb.Struct, dst interface{}) error {
	data, err := protojson.Marshal(req)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// toStatus maps an AppError to the gRPC code of its HTTP status. Server-side
// failures are masked as they are over HTTP.
func toStatus(err error) error {
	var ae *errors.AppError
	if !errors.As(err, &ae) {
		return status.Error(codes.Internal, "internal server error")
	}
	msg := string(ae.Code) + ": " + ae.Message
	if ae.Detail != "" {
		msg += " (" + ae.Detail + ")"
	}
	switch errors.HTTPStatusForCode(ae.Code) {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return status.Error(codes.InvalidArgument, msg)
	case http.StatusNotFound:
		return status.Error(codes.NotFound, msg)
	case http.StatusConflict:
		return status.Error(codes.AlreadyExists, msg)
	case http.StatusRequestEntityTooLarge, http.StatusTooManyRequests:
		return status.Error(codes.ResourceExhausted, msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return status.Error(codes.Unavailable, msg)
	case http.StatusGatewayTimeout:
		return status.Error(codes.DeadlineExceeded, msg)
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}

// CalculationsClient calls ServiceName.
type CalculationsClient struct {
	cc grpc.ClientConnInterface
}

func NewCalculationsClient(cc grpc.ClientConnInterface) *CalculationsClient {
	return &CalculationsClient{cc: cc}
}

func (c *CalculationsClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CalculationsClient) ListDescriptors(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListDescriptors", in, opts...)
}

func (c *CalculationsClient) DecodeDescriptors(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "DecodeDescriptors", in, opts...)
}

func (c *CalculationsClient) Calculate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Calculate", in, opts...)
}

func (c *CalculationsClient) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetRun", in, opts...)
}

func (c *CalculationsClient) DeleteRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "DeleteRun", in, opts...)
}
