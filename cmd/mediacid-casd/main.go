// Command mediacid-casd serves a CAS backend over gRPC so several mediacid
// clients can share one block store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"xdao.co/mediacid/config"
	"xdao.co/mediacid/logging"
	"xdao.co/mediacid/storage"
	"xdao.co/mediacid/storage/casconfig"
	"xdao.co/mediacid/storage/casregistry"
	"xdao.co/mediacid/storage/grpccas"

	_ "xdao.co/mediacid/storage/ipfs"
	_ "xdao.co/mediacid/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

type daemonFlags struct {
	listen      string
	configPath  string
	backend     string
	settings    []string
	logLevel    string
	maxMsgBytes int
}

func newRootCommand() *cobra.Command {
	var f daemonFlags
	var listBackends bool

	cmd := &cobra.Command{
		Use:           "mediacid-casd",
		Short:         "gRPC CAS daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listBackends {
				for _, b := range casregistry.List(casregistry.UsageDaemon) {
					if b.Description == "" {
						fmt.Fprintln(cmd.OutOrStdout(), b.Name)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", b.Name, b.Description)
				}
				return nil
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, f, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&f.listen, "listen", "127.0.0.1:7777", "Listen address")
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "mediacid config whose [cas] section selects the backends")
	cmd.Flags().StringVar(&f.backend, "backend", "", "Serve a single backend by name instead of the config's [cas] section")
	cmd.Flags().StringArrayVar(&f.settings, "set", nil, "Backend setting key=value (with --backend; repeatable)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level")
	cmd.Flags().IntVar(&f.maxMsgBytes, "max-msg-bytes", 64<<20, "Maximum gRPC message size")
	cmd.Flags().BoolVar(&listBackends, "list-backends", false, "List supported backends and exit")
	return cmd
}

// backendConfig resolves the CAS layout from --backend/--set or the config file.
func backendConfig(f daemonFlags) (casconfig.Config, error) {
	if f.backend != "" {
		settings := map[string]string{}
		for _, kv := range f.settings {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return casconfig.Config{}, fmt.Errorf("invalid --set %q, want key=value", kv)
			}
			settings[strings.TrimSpace(k)] = v
		}
		return casconfig.Config{
			WritePolicy: casconfig.WriteFirst,
			Backends:    []casconfig.BackendConfig{{Name: f.backend, Settings: settings}},
		}, nil
	}
	if len(f.settings) > 0 {
		return casconfig.Config{}, errors.New("--set requires --backend")
	}
	cfg, _, _, err := config.Load(f.configPath)
	if err != nil {
		return casconfig.Config{}, err
	}
	return cfg.CAS, nil
}

func serve(ctx context.Context, f daemonFlags, logOut io.Writer) error {
	logger := logging.New(logging.Options{Name: "mediacid-casd", Level: f.logLevel, Output: logOut})

	casCfg, err := backendConfig(f)
	if err != nil {
		return err
	}
	cas, closeFn, err := casCfg.Open(ctx, casregistry.UsageDaemon, "")
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn("close backends", "error", err)
		}
	}()

	lis, err := net.Listen("tcp", f.listen)
	if err != nil {
		return err
	}
	return serveListener(ctx, lis, cas, f.maxMsgBytes, logger)
}

func serveListener(ctx context.Context, lis net.Listener, cas storage.CAS, maxMsgBytes int, logger hclog.Logger) error {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpccas.LoggingInterceptor(logger)),
		grpc.MaxRecvMsgSize(maxMsgBytes),
		grpc.MaxSendMsgSize(maxMsgBytes),
	)
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()
	logger.Info("listening", "addr", lis.Addr().String())
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
