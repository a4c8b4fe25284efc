package main

// #region imports
import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/remote"
)

// #endregion imports

// #region serve-completion-cmd

// newServeCompletionCmd exposes the configured remote backend over gRPC so
// other engine instances can use it with provider "grpc" and one shared
// credential.
func newServeCompletionCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve-completion",
		Short: "Serve the configured remote model over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bcfg := a.cfg.BackendConfig()
			if bcfg.Provider == "grpc" {
				return errors.New("serve-completion needs a direct provider, not grpc")
			}
			backend, err := remote.NewBackend(cmd.Context(), bcfg)
			if err != nil {
				return errors.Wrap(err, "build remote backend")
			}

			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return errors.Wrapf(err, "listen %s", listen)
			}
			srv := grpc.NewServer()
			remote.RegisterCompletionServer(srv, backend)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)
			go func() {
				<-sig
				a.logger.Info().Msg("shutting down completion server")
				srv.GracefulStop()
			}()

			a.logger.Info().Str("addr", lis.Addr().String()).Str("backend", backend.Name()).Msg("completion server listening")
			return srv.Serve(lis)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "localhost:50051", "gRPC listen address")
	return cmd
}

// #endregion serve-completion-cmd
