package main

import (
	"context"
	"flag"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// 引擎 gRPC 健康检查探针，供部署脚本和容器探针使用
func main() {
	var addr, service string
	flag.StringVar(&addr, "addr", "127.0.0.1:50051", "gRPC server address")
	flag.StringVar(&service, "service", "secureop.Engine", "Service name to check")
	flag.Parse()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	defer conn.Close()
	c := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		log.Fatalf("health check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("service %s not serving: %s", service, resp.Status)
	}
	log.Printf("service %s is SERVING", service)
}
