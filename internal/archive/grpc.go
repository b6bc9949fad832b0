package archive

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// gRPC names of the archive service.
const (
	ServiceName          = "agrispy.archive.v1.ArchiveService"
	RecentReadingsMethod = "/" + ServiceName + "/RecentReadings"
)

// ArchiveServer is the server API of the archive service. Requests and
// responses use the well-known Struct and ListValue messages:
//
//	request:  {"limit": <number>}
//	response: [{"id": <number>, "source": ..., "timestamp": ..., "temperature": ..., ...}, ...]
type ArchiveServer interface {
	RecentReadings(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error)
}

// RegisterArchiveServer registers srv with s.
func RegisterArchiveServer(s grpc.ServiceRegistrar, srv ArchiveServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the archive service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ArchiveServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RecentReadings",
			Handler:    recentReadingsHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agrispy/archive/v1/archive.proto",
}

func recentReadingsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ArchiveServer).RecentReadings(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RecentReadingsMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ArchiveServer).RecentReadings(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
