package ipfs

import (
	"context"

	"xdao.co/mediacid/storage"
	"xdao.co/mediacid/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI (settings: bin, ipfs-path, pin)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Open: func(_ context.Context, s casregistry.Settings) (storage.CAS, func() error, error) {
			pin, err := s.Bool("pin", false)
			if err != nil {
				return nil, nil, err
			}
			return New(Options{Bin: s.String("bin", ""), RepoPath: s.String("ipfs-path", ""), Pin: pin}), nil, nil
		},
	})
}
