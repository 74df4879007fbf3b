package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/AtDexters-Lab/sim-protocol/internal/dispatch"
	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/AtDexters-Lab/sim-protocol/internal/session"
	"github.com/AtDexters-Lab/sim-protocol/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func stdioCmd() *cobra.Command {
	var (
		handshake     bool
		extensions    []string
		maxFrameBytes int
	)

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve one frontend over stdin and stdout",
		Long: `stdio runs a single session with the frontend that launched this process,
reading Commands from stdin and writing Events to stdout. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			host := dispatch.NewHost(newModel, dispatch.Options{
				MaxFrameBytes: maxFrameBytes,
				Logger:        log.Logger,
				Extensions:    extensions,
			}, handshake)

			stream := transport.NewPipeStream(os.Stdin, os.Stdout)
			cause := host.Serve(ctx, stream, iface.Peer{Name: "stdio"})
			if orderly(cause) {
				return nil
			}
			return cause
		},
	}

	cmd.Flags().BoolVar(&handshake, "handshake", false, "Send a backend handshake when the session opens")
	cmd.Flags().StringSliceVar(&extensions, "extension", nil, "Protocol extension announced in the handshake (repeatable)")
	cmd.Flags().IntVar(&maxFrameBytes, "max-frame-bytes", 0, "Largest accepted frame; 0 uses the protocol default")
	return cmd
}

func orderly(cause error) bool {
	return cause == nil ||
		errors.Is(cause, session.ErrStreamClosed) ||
		errors.Is(cause, session.ErrTerminated) ||
		errors.Is(cause, session.ErrLocalClose)
}
