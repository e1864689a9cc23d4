package localfs

import (
	"context"
	"fmt"

	"xdao.co/mediacid/storage"
	"xdao.co/mediacid/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (setting: dir)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Open: func(_ context.Context, s casregistry.Settings) (storage.CAS, func() error, error) {
			dir := s.String("dir", "")
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing setting %q", "dir")
			}
			cas, err := New(dir)
			return cas, nil, err
		},
	})
}
