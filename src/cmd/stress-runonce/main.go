package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"tooltip-ocr/src/singleinstance"
)

type stressOptions struct {
	n        int
	copy     bool
	deadline time.Duration
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	return newRootCmd(opts).Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-runonce",
		Short:         "Fire concurrent scan delegations at the resident",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := singleinstance.NewClient()
			return runWithOptions(*opts, client.TryScan, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&opts.n, "n", 50, "number of concurrent clients")
	cmd.Flags().BoolVar(&opts.copy, "copy", false, "ask the resident to copy each result to its clipboard")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 15*time.Second, "per-client timeout")
	return cmd
}

type scanFunc func(ctx context.Context, req singleinstance.Request) (bool, []byte, error)

type tally struct {
	ok, empty, busy, notDelegated, failed atomic.Int32
}

func (t *tally) String() string {
	return fmt.Sprintf("ok=%d empty=%d busy=%d not_delegated=%d err=%d",
		t.ok.Load(), t.empty.Load(), t.busy.Load(), t.notDelegated.Load(), t.failed.Load())
}

func runWithOptions(opts stressOptions, scan scanFunc, w io.Writer) error {
	var wg sync.WaitGroup
	var t tally
	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opts.deadline)
			defer cancel()
			delegated, _, err := scan(ctx, singleinstance.Request{Copy: opts.copy})
			switch {
			case !delegated:
				t.notDelegated.Add(1)
			case errors.Is(err, singleinstance.ErrNoTooltip):
				t.empty.Add(1)
			case err != nil && strings.Contains(strings.ToLower(err.Error()), "busy"):
				t.busy.Add(1)
			case err != nil:
				t.failed.Add(1)
			default:
				t.ok.Add(1)
			}
		}()
	}
	wg.Wait()
	fmt.Fprintf(w, "launched=%d %s elapsed=%s\n", opts.n, &t, time.Since(start).Round(time.Millisecond))
	return nil
}
