// Command kestrel demonstrates the hang and hitch watchdogs against
// synthetic workloads, and validates watchdog configuration files.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/kestrel-watch/kestrel"
	"github.com/kestrel-watch/kestrel/kconfig"
	"github.com/kestrel-watch/kestrel/kheart"
	"github.com/kestrel-watch/kestrel/khttp"
	"github.com/spf13/cobra"
)

func main() {
	if err := mainE(); err != nil {
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	root := NewRootCmd(logger)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Info("Failure", "err", err)
		os.Stderr.Sync()
		return err
	}

	return nil
}

func NewRootCmd(log *slog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use: "kestrel SUBCOMMAND",

		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},

		Long: `kestrel exercises the hang and hitch watchdogs against synthetic workloads.

The demo subcommand runs a set of heartbeating workers and a frame loop,
optionally stalling one worker or injecting slow frames so the detections
can be observed live, in logs or over the debug HTTP endpoint.
`,
	}

	rootCmd.AddCommand(
		newDemoCmd(log),
		newCheckConfigCmd(log),
	)

	return rootCmd
}

func newDemoCmd(log *slog.Logger) *cobra.Command {
	var (
		configPath string
		workers    int
		stallAfter time.Duration
		hitchEvery int
		httpAddr   string
		runFor     time.Duration
	)

	cmd := &cobra.Command{
		Use: "demo",

		Short: "Run synthetic workers under the watchdogs",

		Long: `demo starts the heartbeat registry, the hang supervisor, and the hitch
watchdog, then runs synthetic workers against them.

With --stall-after, one worker goes silent after the given duration so the
hang detection path can be observed end to end. With --hitch-every N, every
Nth frame of the frame loop sleeps past the hitch threshold.
`,

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := kconfig.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w, sCtx := kestrel.New(ctx, log, cfg)
			defer w.Wait()
			kestrel.SetDefault(w)

			if httpAddr != "" {
				ln, err := net.Listen("tcp", httpAddr)
				if err != nil {
					return fmt.Errorf("failed to listen on %q: %w", httpAddr, err)
				}
				log.Info("Serving watchdog debug endpoint", "addr", ln.Addr())

				srv := khttp.NewHTTPServer(sCtx, log, khttp.HTTPServerConfig{
					Listener: ln,
					Registry: w.Registry,
					History:  w.History,
					Hitch:    w.Hitch,
				})
				defer srv.Wait()
			}

			for i := 0; i < workers; i++ {
				stall := time.Duration(0)
				if i == 0 && stallAfter > 0 {
					stall = stallAfter
				}
				go runWorker(sCtx, log.With("worker", i), w.Registry, stall)
			}

			runFrameLoop(sCtx, w, cfg, hitchEvery, runFor)

			if kheart.IsHang(sCtx) {
				log.Info("Demo ended on a fatal hang", "cause", context.Cause(sCtx))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a watchdog config file (defaults apply when absent)")
	cmd.Flags().IntVar(&workers, "workers", 3, "number of heartbeating worker goroutines")
	cmd.Flags().DurationVar(&stallAfter, "stall-after", 0, "stall the first worker after this long (0 disables)")
	cmd.Flags().IntVar(&hitchEvery, "hitch-every", 0, "sleep past the hitch threshold on every Nth frame (0 disables)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve the debug HTTP endpoint on this address")
	cmd.Flags().DurationVar(&runFor, "run-for", 0, "stop after this long (0 runs until interrupted)")

	return cmd
}

// runWorker heartbeats once a second until ctx is cancelled.
// With a positive stallAfter, it goes silent at that point but keeps
// the goroutine parked so its stack stays capturable.
func runWorker(ctx context.Context, log *slog.Logger, reg *kheart.Registry, stallAfter time.Duration) {
	reg.HeartBeat(false)

	var stall <-chan time.Time
	if stallAfter > 0 {
		stallTimer := time.NewTimer(stallAfter)
		defer stallTimer.Stop()
		stall = stallTimer.C
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stall:
			log.Info("Worker going silent")
			<-ctx.Done()
			return
		case <-ticker.C:
			reg.HeartBeat(false)
		}
	}
}

// runFrameLoop drives FrameStart and PresentFrame at roughly 60Hz.
func runFrameLoop(ctx context.Context, w *kestrel.Watchdogs, cfg kconfig.Config, hitchEvery int, runFor time.Duration) {
	var deadline <-chan time.Time
	if runFor > 0 {
		deadlineTimer := time.NewTimer(runFor)
		defer deadlineTimer.Stop()
		deadline = deadlineTimer.C
	}

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			frame++
			w.Hitch.FrameStart(false)
			w.Registry.PresentFrame()

			if hitchEvery > 0 && frame%hitchEvery == 0 {
				time.Sleep(cfg.HitchThreshold() * 2)
			}
		}
	}
}

func newCheckConfigCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use: "check-config PATH",

		Short: "Validate a watchdog config file and print the effective settings",

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := kconfig.Load(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "hang_duration:     %v\n", cfg.HangDuration())
			fmt.Fprintf(cmd.OutOrStdout(), "present_duration:  %v\n", cfg.PresentDuration())
			fmt.Fprintf(cmd.OutOrStdout(), "hitch_threshold:   %v\n", cfg.HitchThreshold())
			fmt.Fprintf(cmd.OutOrStdout(), "check_interval:    %v\n", cfg.CheckInterval())
			fmt.Fprintf(cmd.OutOrStdout(), "capture_interval:  %v\n", cfg.CaptureInterval())
			fmt.Fprintf(cmd.OutOrStdout(), "startup_grace:     %v\n", cfg.StartupGrace())
			fmt.Fprintf(cmd.OutOrStdout(), "max_stack_depth:   %d\n", cfg.MaxStackDepth)
			fmt.Fprintf(cmd.OutOrStdout(), "hangs_are_fatal:   %v\n", cfg.HangsAreFatal)
			return nil
		},
	}

	return cmd
}
