package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/pktstack/logging"
	"github.com/yanet-platform/pktstack/pktdump"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
	// Layers overrides the configured layer patterns.
	Layers []string
	// Dump prints every field of every selected layer.
	Dump bool
	// CrossCheck compares each dissection against gopacket.
	CrossCheck bool
	// Format is the craft output format, "hex" or "pcap".
	Format string
	// Output is the craft output path; stdout when empty.
	Output string
}

var rootCmd = &cobra.Command{
	Use:          "pktdump",
	Short:        "Dissect pcap captures and craft packets",
	SilenceUsage: true,
}

var readCmd = &cobra.Command{
	Use:   "read PCAP...",
	Short: "Print the layers of every packet in the given captures",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		exit(runRead(cmd, args))
	},
}

var craftCmd = &cobra.Command{
	Use:   "craft SPEC",
	Short: "Build a packet from a YAML layer description",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		exit(runCraft(cmd, args[0]))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")

	readCmd.Flags().StringSliceVarP(&cmd.Layers, "layers", "l", nil, "Glob patterns of the layers to print")
	readCmd.Flags().BoolVarP(&cmd.Dump, "dump", "d", false, "Print every field")
	readCmd.Flags().BoolVar(&cmd.CrossCheck, "cross-check", false, "Compare dissections against gopacket")

	craftCmd.Flags().StringVarP(&cmd.Format, "format", "f", "hex", "Output format: hex or pcap")
	craftCmd.Flags().StringVarP(&cmd.Output, "output", "o", "", "Output path (stdout by default)")

	rootCmd.AddCommand(readCmd, craftCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func exit(err error) {
	var interrupted Interrupted
	if err == nil || errors.As(err, &interrupted) {
		return
	}

	fmt.Printf("ERROR: %v\n", err)
	os.Exit(1)
}

func loadConfig(cmd Cmd) (*pktdump.Config, error) {
	cfg := pktdump.DefaultConfig()
	if cmd.ConfigPath != "" {
		c, err := pktdump.LoadConfig(cmd.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	}

	if len(cmd.Layers) > 0 {
		cfg.Layers = cmd.Layers
	}
	cfg.Dump = cfg.Dump || cmd.Dump
	cfg.CrossCheck = cfg.CrossCheck || cmd.CrossCheck
	return cfg, nil
}

func runRead(cmd Cmd, paths []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	dumper, err := pktdump.NewDumper(cfg, pktdump.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to initialize dumper: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		defer cancel()

		for _, path := range paths {
			if err := readFile(ctx, dumper, path, log); err != nil {
				return err
			}
		}
		return nil
	})
	wg.Go(func() error {
		err := WaitInterrupted(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}

func readFile(ctx context.Context, dumper *pktdump.Dumper, path string, log *zap.SugaredLogger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	stats, err := dumper.Run(ctx, f, os.Stdout)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	log.Infow("dissected capture",
		zap.String("path", path),
		zap.Int("packets", stats.Packets),
		zap.Int("bytes", stats.Bytes),
		zap.Int("truncated", stats.Truncated),
		zap.Int("undissected", stats.Undissected),
		zap.Int("mismatches", stats.Mismatches),
	)
	return nil
}

func runCraft(cmd Cmd, specPath string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	spec, err := pktdump.LoadCraftSpec(specPath)
	if err != nil {
		return err
	}

	registry, err := pktdump.NewRegistry(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build protocol catalog: %w", err)
	}

	pkt, data, err := pktdump.Craft(registry, spec)
	if err != nil {
		return fmt.Errorf("failed to craft packet: %w", err)
	}
	log.Debugf("crafted packet:\n%s", pkt.Dump())

	out := os.Stdout
	if cmd.Output != "" {
		f, err := os.Create(cmd.Output)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch cmd.Format {
	case "hex":
		return pktdump.WriteHex(out, data)
	case "pcap":
		return pktdump.WritePcap(out, spec.LinkType, uint32(cfg.Snaplen.Bytes()), time.Now(), data)
	default:
		return fmt.Errorf("unknown output format %q", cmd.Format)
	}
}

type Interrupted struct {
	os.Signal
}

func (m Interrupted) Error() string {
	return m.String()
}

// WaitInterrupted blocks until either SIGINT or SIGTERM signal is received or
// the provided context is canceled.
func WaitInterrupted(ctx context.Context) error {
	ch := make(chan os.Signal, 1)

	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ch)

	select {
	case v := <-ch:
		return Interrupted{Signal: v}
	case <-ctx.Done():
		return ctx.Err()
	}
}
