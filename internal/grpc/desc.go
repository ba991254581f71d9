package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// FullMethodStreamFrames is the wire name of the frame stream RPC.
const FullMethodStreamFrames = "/raygrid.FrameStream/StreamFrames"

// FrameStreamServer is implemented by the frame streaming service.
type FrameStreamServer interface {
	StreamFrames(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes raygrid.FrameStream. Requests and frames travel as
// google.protobuf.Struct so no generated stubs are needed.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "raygrid.FrameStream",
	HandlerType: (*FrameStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamFrames",
			Handler:       streamFramesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "raygrid/frames.proto",
}

func streamFramesHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(FrameStreamServer).StreamFrames(req, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Register attaches the service to a gRPC server.
func Register(registrar grpc.ServiceRegistrar, srv FrameStreamServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// DialFrames opens a frame stream on conn. The request may be nil.
func DialFrames(ctx context.Context, conn grpc.ClientConnInterface, req *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	cs, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], FullMethodStreamFrames, opts...)
	if err != nil {
		return nil, err
	}
	stream := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: cs}
	if err := stream.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}
