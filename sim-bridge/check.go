package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/AtDexters-Lab/sim-protocol/internal/codec"
	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
	"github.com/spf13/cobra"
)

const (
	directionCommands = "commands"
	directionEvents   = "events"
)

// errCheckFailed is returned when a checked stream holds invalid frames.
var errCheckFailed = errors.New("stream failed the check")

func checkCmd() *cobra.Command {
	var (
		direction     string
		maxFrameBytes int
	)

	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Decode and validate a recorded NDJSON stream",
		Long: `check decodes every frame of a recorded stream (a file, or stdin when no
file is given) and reports the first framing or schema error and every
Command that fails validation.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			report, err := checkStream(in, direction, protocol.DefaultLimits(), maxFrameBytes)
			if err != nil {
				return err
			}
			report.print(cmd.OutOrStdout())
			if !report.ok() {
				return errCheckFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&direction, "direction", "d", directionCommands, "Frame direction: commands or events")
	cmd.Flags().IntVar(&maxFrameBytes, "max-frame-bytes", 0, "Largest accepted frame; 0 uses the protocol default")
	return cmd
}

type frameIssue struct {
	Frame uint64
	Err   error
}

type checkReport struct {
	Direction string
	Frames    uint64
	Types     map[string]int
	Invalid   []frameIssue
	// Fatal is the error that stopped decoding, if any.
	Fatal error
}

func (r checkReport) ok() bool {
	return r.Fatal == nil && len(r.Invalid) == 0
}

func (r checkReport) print(w io.Writer) {
	types := make([]string, 0, len(r.Types))
	for typ := range r.Types {
		types = append(types, typ)
	}
	sort.Strings(types)

	fmt.Fprintf(w, "%d %s decoded\n", r.Frames, r.Direction)
	for _, typ := range types {
		fmt.Fprintf(w, "  %-24s %d\n", typ, r.Types[typ])
	}
	for _, issue := range r.Invalid {
		fmt.Fprintf(w, "frame %d: %v\n", issue.Frame, issue.Err)
	}
	if r.Fatal != nil {
		fmt.Fprintf(w, "stopped after frame %d: %v\n", r.Frames, r.Fatal)
	}
}

// checkStream decodes r until end of stream or the first fatal error.
func checkStream(r io.Reader, direction string, limits protocol.Limits, maxFrameBytes int) (checkReport, error) {
	var opts []codec.Option
	if maxFrameBytes > 0 {
		opts = append(opts, codec.WithMaxFrameBytes(maxFrameBytes))
	}
	report := checkReport{Direction: direction, Types: map[string]int{}}

	var next func() (protocol.Message, error)
	switch direction {
	case directionCommands:
		dec := codec.NewCommandDecoder(r, opts...)
		next = func() (protocol.Message, error) {
			cmd, err := dec.Next()
			if err != nil {
				return nil, err
			}
			if err := cmd.Validate(limits); err != nil {
				return cmd, err
			}
			return cmd, nil
		}
	case directionEvents:
		dec := codec.NewEventDecoder(r, opts...)
		next = func() (protocol.Message, error) {
			ev, err := dec.Next()
			if err != nil {
				return nil, err
			}
			return ev, nil
		}
	default:
		return report, fmt.Errorf("unknown direction %q (want %s or %s)", direction, directionCommands, directionEvents)
	}

	for {
		msg, err := next()
		if msg != nil {
			report.Frames++
			report.Types[msg.MessageType()]++
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return report, nil
		case !protocol.IsFatal(err):
			if msg == nil {
				report.Frames++
			}
			report.Invalid = append(report.Invalid, frameIssue{Frame: report.Frames, Err: err})
		default:
			report.Fatal = err
			return report, nil
		}
	}
}
