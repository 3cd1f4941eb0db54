// Command kernel boots the simulated single-CPU kernel: it parses the
// boot command line, wires a kernel.Kernel, execs an initial process,
// and runs until interrupted — the hosted stand-in for main()'s
// phys_init/attach_devs/cpus_start sequence followed by
// exec("bin/init", nil) and a sleep-forever receive on a nil channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hnjog/pintos-kaist/internal/kernel"
	"github.com/hnjog/pintos-kaist/internal/klog"
	"github.com/hnjog/pintos-kaist/internal/process"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := kernel.BootConfig{Frames: 64, SwapSlots: 64}

	cmd := &cobra.Command{
		Use:   "kernel",
		Short: "gopintos: a single-CPU instructional kernel core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&cfg.MLFQS, "mlfqs", false, "use the multi-level feedback queue scheduler (-o mlfqs)")
	flags.IntVar(&cfg.Frames, "frames", cfg.Frames, "number of physical frames available to the frame table")
	flags.IntVar(&cfg.SwapSlots, "swap-slots", cfg.SwapSlots, "number of page-sized slots on the swap device")

	return cmd
}

func run(cfg kernel.BootConfig) error {
	defer klog.Sync()

	k := kernel.New(cfg)

	k.Spawn("init", func(p *process.Process) {
		klog.Sub("init").Infow("init process started")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := k.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
