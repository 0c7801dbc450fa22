package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/danmuck/hcilink/internal/config"
	"github.com/danmuck/hcilink/internal/protocol"
	"github.com/danmuck/hcilink/internal/protocol/catalogue"
	"github.com/danmuck/hcilink/internal/protocol/frame"
	"github.com/danmuck/hcilink/internal/protocol/session"
)

var errNoResponse = errors.New("no response")

func newCatalogueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalogue",
		Short: "List the known test commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeCatalogue(cmd.OutOrStdout())
		},
	}
}

func writeCatalogue(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tOPCODE\tSUBOP\tPARAMS\tDESCRIPTION")
	for _, name := range catalogue.Names() {
		e, _ := catalogue.Lookup(name)
		subOp := "-"
		if e.SubOp >= 0 {
			subOp = fmt.Sprintf("0x%02x", e.SubOp)
		}
		params := "var"
		if e.ParamLen >= 0 {
			params = strconv.Itoa(e.ParamLen)
		}
		fmt.Fprintf(tw, "%s\t0x%04x\t%s\t%s\t%s\n", e.Name, e.Opcode, subOp, params, e.Description)
	}
	return tw.Flush()
}

// exchangeCmd builds a subcommand that sends one command and prints the
// response event.
func exchangeCmd(flags *globalFlags, use, short string, build func() (frame.Command, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := build()
			if err != nil {
				return err
			}
			return runLink(cmd, flags, func(ctx context.Context, link *session.Link, cfg config.Config) error {
				evt, ok, err := link.Exchange(command, cfg.ResponseTimeout)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no response")
					return errNoResponse
				}
				printEvent(cmd.OutOrStdout(), evt)
				return nil
			})
		},
	}
}

func newResetCmd(flags *globalFlags) *cobra.Command {
	return exchangeCmd(flags, "reset", "Send HCI reset", func() (frame.Command, error) {
		return catalogue.Reset(), nil
	})
}

func newTxTestCmd(flags *globalFlags) *cobra.Command {
	var channel, length, payload uint8
	cmd := exchangeCmd(flags, "tx-test", "Start the LE transmitter test", func() (frame.Command, error) {
		return catalogue.TxTest(channel, length, payload), nil
	})
	cmd.Flags().Uint8Var(&channel, "channel", 0, "RF channel (0-39)")
	cmd.Flags().Uint8Var(&length, "length", 37, "Test packet payload length")
	cmd.Flags().Uint8Var(&payload, "payload", 0, "Payload pattern")
	return cmd
}

func newRxTestCmd(flags *globalFlags) *cobra.Command {
	var channel uint8
	cmd := exchangeCmd(flags, "rx-test", "Start the LE receiver test", func() (frame.Command, error) {
		return catalogue.RxTest(channel), nil
	})
	cmd.Flags().Uint8Var(&channel, "channel", 0, "RF channel (0-39)")
	return cmd
}

func newTestEndCmd(flags *globalFlags) *cobra.Command {
	return exchangeCmd(flags, "test-end", "End the running LE test", func() (frame.Command, error) {
		return catalogue.TestEnd(), nil
	})
}

func newSendCmd(flags *globalFlags) *cobra.Command {
	var opcode, params string
	var force bool
	cmd := exchangeCmd(flags, "send", "Send a raw command", func() (frame.Command, error) {
		command, err := parseRawCommand(opcode, params)
		if err != nil {
			return frame.Command{}, err
		}
		if err := catalogue.Validate(command); err != nil && !force {
			return frame.Command{}, fmt.Errorf("%w (use --force to send anyway)", err)
		}
		return command, nil
	})
	cmd.Flags().StringVar(&opcode, "opcode", "", "Opcode, e.g. 0x0c03")
	cmd.Flags().StringVar(&params, "params", "", "Parameter bytes as hex, e.g. \"13 25 00\"")
	cmd.Flags().BoolVar(&force, "force", false, "Send even if the catalogue does not know the command")
	_ = cmd.MarkFlagRequired("opcode")
	return cmd
}

func newListenCmd(flags *globalFlags) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print inbound events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(cmd, flags, func(ctx context.Context, link *session.Link, cfg config.Config) error {
				for seen := 0; count <= 0 || seen < count; seen++ {
					evt, err := link.Queue().WaitAndPopContext(ctx)
					if err != nil {
						if errors.Is(err, context.Canceled) || errors.Is(err, protocol.ErrQueueClosed) {
							return nil
						}
						return err
					}
					printEvent(cmd.OutOrStdout(), evt)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "Stop after this many events (0: until interrupted)")
	return cmd
}

func parseRawCommand(opcode, params string) (frame.Command, error) {
	op, err := strconv.ParseUint(strings.TrimSpace(opcode), 0, 16)
	if err != nil {
		return frame.Command{}, fmt.Errorf("parse opcode %q: %w", opcode, err)
	}
	cleaned := strings.NewReplacer(" ", "", ":", "", "0x", "", ",", "").Replace(strings.ToLower(params))
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return frame.Command{}, fmt.Errorf("parse params: %w", err)
	}
	if len(raw) > protocol.MaxParamLen {
		return frame.Command{}, fmt.Errorf("%w: %d parameter bytes", protocol.ErrInvalidLength, len(raw))
	}
	if len(raw) == 0 {
		raw = nil
	}
	return frame.Command{Opcode: uint16(op), Params: raw}, nil
}

func printEvent(out io.Writer, evt frame.Event) {
	fmt.Fprintf(out, "event=0x%02x len=%d params=% x\n", evt.Code, evt.Len(), evt.Params)
	resp, err := catalogue.ParseResponse(evt)
	if err != nil {
		return
	}
	name := "unknown"
	for _, e := range catalogue.Entries {
		if e.Opcode == resp.Opcode {
			name = e.Name
			break
		}
	}
	status := "-"
	if resp.HasStatus {
		status = fmt.Sprintf("0x%02x", resp.Status)
	}
	fmt.Fprintf(out, "  opcode=0x%04x (%s) status=%s ok=%t return=% x\n", resp.Opcode, name, status, resp.Succeeded(), resp.Return)
}
