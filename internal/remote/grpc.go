package remote

// #region imports
import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #endregion imports

// #region service

const (
	completionServiceName = "answerengine.remote.v1.CompletionService"
	completeMethod        = "/" + completionServiceName + "/Complete"
)

// CompletionServer is the server side of the completion service. Requests
// carry prompt, temperature, max_output_tokens and model; responses carry text.
type CompletionServer interface {
	Complete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var completionServiceDesc = grpc.ServiceDesc{
	ServiceName: completionServiceName,
	HandlerType: (*CompletionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Complete", Handler: completeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "answerengine/remote/v1/completion.proto",
}

func completeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CompletionServer).Complete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: completeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CompletionServer).Complete(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterCompletionServer serves backend over gRPC on s.
func RegisterCompletionServer(s grpc.ServiceRegistrar, backend Backend) {
	s.RegisterService(&completionServiceDesc, &backendServer{backend: backend})
}

type backendServer struct {
	backend Backend
}

func (s *backendServer) Complete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	prompt := fields["prompt"].GetStringValue()
	if prompt == "" {
		return nil, status.Error(codes.InvalidArgument, "prompt is required")
	}
	params := GenerationParams{
		Temperature:     float32(fields["temperature"].GetNumberValue()),
		MaxOutputTokens: int(fields["max_output_tokens"].GetNumberValue()),
	}
	text, err := s.backend.Complete(ctx, prompt, params)
	if err != nil {
		switch {
		case isQuotaError(err):
			return nil, status.Error(codes.ResourceExhausted, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			return nil, status.Error(codes.DeadlineExceeded, err.Error())
		default:
			return nil, status.Error(codes.Unavailable, err.Error())
		}
	}
	return structpb.NewStruct(map[string]any{"text": text})
}

// #endregion service

// #region client

// GRPCBackend calls a completion sidecar over gRPC.
type GRPCBackend struct {
	conn  grpc.ClientConnInterface
	close func() error
	model string
}

// DialGRPCBackend connects to a completion sidecar at addr.
func DialGRPCBackend(addr, model string) (*GRPCBackend, error) {
	if addr == "" {
		return nil, errors.Wrap(ErrNoBackend, "grpc: missing address")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrapf(err, "grpc dial %s", addr)
	}
	return &GRPCBackend{conn: conn, close: conn.Close, model: model}, nil
}

// NewGRPCBackendWithConn uses an existing connection. Used by tests.
func NewGRPCBackendWithConn(conn grpc.ClientConnInterface, model string) *GRPCBackend {
	return &GRPCBackend{conn: conn, model: model}
}

// Close shuts down the connection if this backend dialed it.
func (g *GRPCBackend) Close() error {
	if g.close == nil {
		return nil
	}
	return g.close()
}

// Name implements Backend.
func (g *GRPCBackend) Name() string { return "grpc" }

// Complete implements Backend.
func (g *GRPCBackend) Complete(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"prompt":            prompt,
		"temperature":       float64(params.Temperature),
		"max_output_tokens": float64(params.MaxOutputTokens),
		"model":             g.model,
	})
	if err != nil {
		return "", errors.Wrap(err, "encode request")
	}
	resp := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, completeMethod, req, resp); err != nil {
		return "", errors.Wrap(err, "complete rpc")
	}
	text, ok := resp.GetFields()["text"]
	if !ok {
		return "", errors.New("complete rpc: response has no text")
	}
	return text.GetStringValue(), nil
}

// #endregion client
