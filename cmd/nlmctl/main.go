// cmd/nlmctl/main.go
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"distributed-nlm/internal/domain"
	"distributed-nlm/internal/rpc"
	"distributed-nlm/internal/usecase"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// dialFunc opens a lock manager for addr and returns a function closing it.
type dialFunc func(addr string) (domain.LockManager, func() error, error)

func dialGRPC(addr string) (domain.LockManager, func() error, error) {
	client, err := rpc.Dial(addr)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func main() {
	if err := newRootCmd(dialGRPC).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(dial dialFunc) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("NLMCTL")
	v.AutomaticEnv()

	var (
		manager domain.LockManager
		closeFn func() error
	)

	root := &cobra.Command{
		Use:          "nlmctl",
		Short:        "Inspect and drive NLM byte-range locks held by nlmd",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			var err error
			manager, closeFn, err = dial(v.GetString("addr"))
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if closeFn != nil {
				return closeFn()
			}
			return nil
		},
	}
	root.PersistentFlags().String("addr", "localhost:9090", "gRPC address of an nlmd instance")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "Deadline for each call")
	root.PersistentFlags().Bool("holder-hex", false, "Treat the holder argument as hex instead of raw text")

	callCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), v.GetDuration("timeout"))
	}

	rangeCmd := func(use, short string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " [file-id-hex] [holder] [offset] [length]",
			Short: short,
			Args:  cobra.ExactArgs(4),
			RunE: func(cmd *cobra.Command, args []string) error {
				fileID, rec, err := parseRangeArgs(args, v.GetBool("holder-hex"))
				if err != nil {
					return err
				}
				ctx, cancel := callCtx()
				defer cancel()

				switch use {
				case "lock":
					err = manager.Lock(ctx, fileID, rec)
				case "unlock":
					err = manager.Unlock(ctx, fileID, rec)
				default:
					err = manager.Test(ctx, fileID, rec)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "result=%s\n", usecase.ResultOf(err))
				return err
			},
		}
	}

	root.AddCommand(
		rangeCmd("lock", "Acquire a byte-range lock"),
		rangeCmd("unlock", "Release a byte-range lock"),
		rangeCmd("test", "Check whether a byte-range lock would be granted"),
		&cobra.Command{
			Use:   "list [file-id-hex]",
			Short: "List the locks held on a file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				fileID, err := hex.DecodeString(args[0])
				if err != nil {
					return fmt.Errorf("invalid file id %q: %w", args[0], err)
				}
				ctx, cancel := callCtx()
				defer cancel()

				held, err := manager.List(ctx, fileID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, h := range held {
					fmt.Fprintf(out, "%s\tholder=%x\toffset=%d\tlength=%d\n", h.Node, h.Record.Holder, h.Record.Offset, h.Record.Length)
				}
				return nil
			},
		},
	)
	return root
}

// parseRangeArgs turns [file-id-hex, holder, offset, length] into a request.
func parseRangeArgs(args []string, holderHex bool) ([]byte, domain.LockRecord, error) {
	fileID, err := hex.DecodeString(args[0])
	if err != nil {
		return nil, domain.LockRecord{}, fmt.Errorf("invalid file id %q: %w", args[0], err)
	}
	holder := []byte(args[1])
	if holderHex {
		if holder, err = hex.DecodeString(args[1]); err != nil {
			return nil, domain.LockRecord{}, fmt.Errorf("invalid holder %q: %w", args[1], err)
		}
	}
	offset, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return nil, domain.LockRecord{}, fmt.Errorf("invalid offset %q: %w", args[2], err)
	}
	length, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		return nil, domain.LockRecord{}, fmt.Errorf("invalid length %q: %w", args[3], err)
	}
	return fileID, domain.NewLockRecord(holder, offset, length), nil
}
