package server

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer 初始化 gRPC 服务
// 目前只暴露标准健康检查，供 K8s 探针和负载均衡器使用
func NewGRPCServer() (*grpc.Server, *health.Server) {
	s := grpc.NewServer()

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(s, healthSrv)
	healthSrv.SetServingStatus("secureop.Engine", healthpb.HealthCheckResponse_SERVING)

	return s, healthSrv
}
