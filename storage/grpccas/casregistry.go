package grpccas

import (
	"context"
	"fmt"
	"time"

	"xdao.co/mediacid/storage"
	"xdao.co/mediacid/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC CAS client for mediacid-casd (settings: target, timeout, max-msg-bytes)",
		Usage:       casregistry.UsageCLI,
		Open: func(_ context.Context, s casregistry.Settings) (storage.CAS, func() error, error) {
			target := s.String("target", "")
			if target == "" {
				return nil, nil, fmt.Errorf("grpc: missing setting %q", "target")
			}
			timeout, err := s.Duration("timeout", 30*time.Second)
			if err != nil {
				return nil, nil, err
			}
			maxMsg, err := s.Int("max-msg-bytes", 0)
			if err != nil {
				return nil, nil, err
			}
			client, err := Dial(target, DialOptions{Timeout: timeout, MaxMsgBytes: maxMsg})
			if err != nil {
				return nil, nil, err
			}
			return client, client.Close, nil
		},
	})
}
