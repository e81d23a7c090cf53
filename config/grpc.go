package config

import (
	"fmt"
	"time"

	grpcpkg "github.com/vedmemory/ved/pkg/grpc"
)

// ToGRPCConfig converts config.GRPCConfig to pkg/grpc.Config.
func (g *GRPCConfig) ToGRPCConfig(host string) *grpcpkg.Config {
	return &grpcpkg.Config{
		Address:          fmt.Sprintf("%s:%d", host, g.Port),
		EnableReflection: g.EnableReflection,
		HealthInterval:   g.HealthInterval,
		Keepalive: grpcpkg.KeepaliveConfig{
			MaxConnectionIdle: time.Duration(g.Keepalive.MaxIdleSeconds) * time.Second,
			Time:              time.Duration(g.Keepalive.TimeSeconds) * time.Second,
			Timeout:           time.Duration(g.Keepalive.TimeoutSeconds) * time.Second,
		},
	}
}
