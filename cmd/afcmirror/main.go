package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bmercer/afcmirror/internal/config"
	"github.com/bmercer/afcmirror/internal/device"
	"github.com/bmercer/afcmirror/internal/event"
	"github.com/bmercer/afcmirror/internal/mirror"
	"github.com/bmercer/afcmirror/internal/session"
	"github.com/bmercer/afcmirror/internal/stats"
)

var version = "dev"

func main() {
	os.Exit(run())
}

type options struct {
	deviceAddr  string
	keyFile     string
	musicRoot   string
	libraryRoot string
	directories []string
	bwLimit     int64
	verify      bool
	verbose     bool
	quiet       bool
}

//nolint:gocyclo // main CLI entry point orchestrates flag parsing and mode selection
func run() int {
	var opts options

	fileCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: config: %v\n", err)
	}

	root := &cobra.Command{
		Use:           "afcmirror",
		Short:         "Mirror a music library to and from a portable device",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.deviceAddr, "device", "d", "", "device address (user@host[:port], or fake: for an in-memory device)")
	pf.StringVar(&opts.keyFile, "key", "", "SSH private key file")
	pf.StringVar(&opts.musicRoot, "music-root", "", "device bucket root (default "+device.DefaultMusicRoot+")")
	pf.StringVarP(&opts.libraryRoot, "library", "l", "", "local library root")
	pf.StringSliceVar(&opts.directories, "dirs", nil, "top-level device directories to mirror")
	pf.Int64Var(&opts.bwLimit, "bwlimit", 0, "bandwidth limit in bytes/sec (0 = unlimited)")
	pf.BoolVar(&opts.verify, "verify", false, "re-read and hash-compare every copied file")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "per-file logging")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output")

	root.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		applyConfig(cmd, &opts, fileCfg)
		setupLogging(opts)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "push",
			Short: "Copy the local library to the device",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runTransfer(cmd.Context(), opts, mirror.ToDevice)
			},
		},
		&cobra.Command{
			Use:   "pull",
			Short: "Copy the device library to the local root",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runTransfer(cmd.Context(), opts, mirror.FromDevice)
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show device properties and storage bucket count",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runInfo(opts)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errTransferFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}

// applyConfig merges file config into flags the user didn't set.
func applyConfig(cmd *cobra.Command, opts *options, cfg config.Config) {
	flags := cmd.Flags()
	if !flags.Changed("device") && cfg.Device.Host != nil {
		opts.deviceAddr = *cfg.Device.Host
		if cfg.Device.User != nil {
			opts.deviceAddr = *cfg.Device.User + "@" + opts.deviceAddr
		}
		if cfg.Device.Port != nil {
			opts.deviceAddr = net.JoinHostPort(opts.deviceAddr, strconv.Itoa(*cfg.Device.Port))
		}
	}
	if !flags.Changed("key") && cfg.Device.KeyFile != nil {
		opts.keyFile = *cfg.Device.KeyFile
	}
	if !flags.Changed("music-root") && cfg.Device.MusicRoot != nil {
		opts.musicRoot = *cfg.Device.MusicRoot
	}
	if !flags.Changed("library") && cfg.Library.Root != nil {
		opts.libraryRoot = *cfg.Library.Root
	}
	if !flags.Changed("dirs") && cfg.Library.Directories != nil {
		opts.directories = cfg.Library.Directories
	}
	if !flags.Changed("bwlimit") && cfg.Transfer.BWLimit != nil {
		opts.bwLimit = *cfg.Transfer.BWLimit
	}
	if !flags.Changed("verify") && cfg.Transfer.Verify != nil {
		opts.verify = *cfg.Transfer.Verify
	}
}

func setupLogging(opts options) {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	if opts.quiet {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// errTransferFailed signals a completed-with-errors session without
// printing a second error line.
var errTransferFailed = errors.New("transfer completed with errors")

func runTransfer(ctx context.Context, opts options, direction mirror.Direction) error {
	if opts.libraryRoot == "" {
		return fmt.Errorf("no local library root (use --library or the config file)")
	}

	ch, err := channelFor(opts)
	if err != nil {
		return err
	}
	defer ch.Close()

	collector := stats.NewCollector()

	var events event.Func
	if opts.verbose {
		events = logEvent
	}

	cfg := mirror.Config{
		Verify: opts.verify,
		Stats:  collector,
		Alloc:  device.NewAllocator(opts.musicRoot, nil),
		Events: events,
	}
	if opts.bwLimit > 0 {
		cfg.Limiter = mirror.NewBWLimiter(opts.bwLimit)
	}

	sess := session.New(session.Config{
		LocalRoot:   opts.libraryRoot,
		Directories: opts.directories,
		Direction:   direction,
		Mirror:      mirror.New(cfg),
		Sink:        logSink{},
		Events:      events,
	})

	stopProgress := startProgress(collector, opts.quiet)
	results := sess.Run(ctx, ch)
	stopProgress()

	snap := collector.Snapshot()
	fmt.Printf("%s: %d copied, %d failed, %d skipped, %s in %s\n",
		direction, snap.FilesCopied, snap.FilesFailed, snap.FilesSkipped,
		stats.FormatBytes(snap.BytesCopied), snap.Elapsed.Round(time.Millisecond))

	if !results.Success() {
		for _, d := range results.Dirs {
			for _, fe := range d.Failed {
				slog.Warn("entry failed", "dir", d.Directory, "path", fe.Path, "error", fe.Err)
			}
		}
		return errTransferFailed
	}
	return nil
}

func runInfo(opts options) error {
	ch, err := channelFor(opts)
	if err != nil {
		return err
	}
	defer ch.Close()

	printProp := func(label, property, domain string) {
		if v, ok := ch.ReadProperty(property, domain); ok {
			fmt.Printf("%-16s %s\n", label+":", v)
		}
	}
	printProp("name", device.PropDeviceName, "")
	printProp("version", device.PropProductVersion, "")
	printProp("battery", device.PropBatteryCapacity, device.BatteryDomain)

	alloc := device.NewAllocator(opts.musicRoot, nil)
	fmt.Printf("%-16s %d (under %s)\n", "buckets:", alloc.CountBuckets(ch), alloc.Root())
	return nil
}

// channelFor opens the device channel for the given address. The fake:
// scheme yields an in-memory device with a few empty buckets, for trying
// the tool without hardware.
func channelFor(opts options) (device.Channel, error) {
	addr := opts.deviceAddr
	if addr == "" {
		return nil, fmt.Errorf("no device specified (use --device or the config file)")
	}

	if strings.HasPrefix(addr, "fake:") {
		fake := device.NewFakeChannel()
		fake.SetProperty(device.PropDeviceName, "", "fake device")
		root := opts.musicRoot
		if root == "" {
			root = device.DefaultMusicRoot
		}
		for i := 0; i < 4; i++ {
			if err := fake.MkdirAll(fmt.Sprintf("%s/F%02d", root, i)); err != nil {
				return nil, err
			}
		}
		return fake, nil
	}

	sftpOpts := device.SFTPOpts{Host: addr, KeyFile: opts.keyFile}
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		sftpOpts.User = addr[:at]
		sftpOpts.Host = addr[at+1:]
	}
	if host, portStr, err := net.SplitHostPort(sftpOpts.Host); err == nil {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("bad port in %q: %w", addr, err)
		}
		sftpOpts.Host = host
		sftpOpts.Port = port
	}
	return device.DialSFTP(sftpOpts)
}

// logSink reports the session lifecycle through the default logger.
type logSink struct{}

func (logSink) TaskStarted(taskID string) {
	slog.Info("transfer started", "task", taskID)
}

func (logSink) TransferFinished(success bool) {
	slog.Info("transfer finished", "success", success)
}

func logEvent(e event.Event) {
	switch e.Type {
	case event.FileCopied:
		slog.Debug("copied", "path", e.Path, "dest", e.Dest, "bytes", e.Size)
	case event.FileFailed:
		slog.Warn("copy failed", "path", e.Path, "error", e.Error)
	case event.FileSkipped:
		slog.Debug("skipped", "path", e.Path)
	case event.DirStarted:
		slog.Debug("directory", "path", e.Path)
	case event.DirFailed:
		slog.Warn("directory failed", "path", e.Path, "error", e.Error)
	}
}

// startProgress prints a throughput line to stderr once per 5s while a
// transfer runs on a terminal. Returns a stop function.
func startProgress(collector *stats.Collector, quiet bool) func() {
	if quiet || !term.IsTerminal(int(os.Stderr.Fd())) {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		n := 0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				collector.Tick()
				n++
				if n%5 == 0 {
					snap := collector.Snapshot()
					fmt.Fprintf(os.Stderr, "progress: %d files %s %s/s\n",
						snap.FilesCopied,
						stats.FormatBytes(snap.BytesCopied),
						stats.FormatBytes(int64(collector.RollingSpeed(10))))
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}
