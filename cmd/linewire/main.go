package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/linewire/pkg/config"
	"github.com/ajitpratap0/linewire/pkg/logger"
	"github.com/ajitpratap0/linewire/pkg/sender"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "linewire",
		Short: "Linewire - line protocol ingestion client",
		Long: `Linewire is a client for text line protocol ingestion into time-series
databases, supporting streaming TCP/TLS and request HTTP/S transports.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Linewire v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var configFile string
	var protocol, address string

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Connect to a server and deliver a single test row",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, protocol, address)
			if err != nil {
				return err
			}
			return runPing(cfg)
		},
	}
	pingCmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	pingCmd.Flags().StringVarP(&protocol, "protocol", "p", "http", "Transport protocol (tcp, tcps, http, https)")
	pingCmd.Flags().StringVarP(&address, "address", "a", "localhost:9000", "Server address (host:port)")
	root.AddCommand(pingCmd)

	var rows int
	var tables, symbols, columns int

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Generate synthetic load and report throughput",
		Long: `Generate synthetic rows against a server and report encoding and
delivery throughput. Rows are spread across a configurable number of
tables with random symbol and float column values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, protocol, address)
			if err != nil {
				return err
			}
			return runBench(cfg, rows, tables, symbols, columns)
		},
	}
	benchCmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	benchCmd.Flags().StringVarP(&protocol, "protocol", "p", "http", "Transport protocol (tcp, tcps, http, https)")
	benchCmd.Flags().StringVarP(&address, "address", "a", "localhost:9000", "Server address (host:port)")
	benchCmd.Flags().IntVarP(&rows, "rows", "n", 1_000_000, "Number of rows to send")
	benchCmd.Flags().IntVar(&tables, "tables", 4, "Number of distinct tables")
	benchCmd.Flags().IntVar(&symbols, "symbols", 2, "Symbol columns per row")
	benchCmd.Flags().IntVar(&columns, "columns", 6, "Float columns per row")
	root.AddCommand(benchCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the sender configuration from a YAML file when given,
// otherwise from the protocol and address flags with defaults.
func loadConfig(configFile, protocol, address string) (*config.SenderConfig, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	cfg := config.NewSenderConfig(config.Protocol(protocol), address)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runPing(cfg *config.SenderConfig) error {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Connect+cfg.Timeouts.Request)
	defer cancel()

	s, err := sender.New(cfg)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	start := time.Now()
	if err := s.Table("linewire_ping"); err != nil {
		return err
	}
	if err := s.Symbol("host", hostname()); err != nil {
		return err
	}
	if err := s.Int64Column("seq", 1); err != nil {
		return err
	}
	if err := s.At(ctx, time.Now()); err != nil {
		return err
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}

	elapsed := time.Since(start)
	log.Info("ping delivered",
		zap.String("protocol", string(cfg.Connection.Protocol)),
		zap.String("address", cfg.Connection.Address),
		zap.Duration("elapsed", elapsed))
	fmt.Printf("OK: 1 row delivered to %s://%s in %v\n",
		cfg.Connection.Protocol, cfg.Connection.Address, elapsed)
	return nil
}

func runBench(cfg *config.SenderConfig, rows, tables, symbols, columns int) error {
	log := logger.Get()
	ctx := context.Background()

	s, err := sender.New(cfg)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	log.Info("starting benchmark",
		zap.Int("rows", rows),
		zap.Int("tables", tables),
		zap.String("protocol", string(cfg.Connection.Protocol)))

	start := time.Now()
	for i := 0; i < rows; i++ {
		table := fmt.Sprintf("bench_%d", i%tables)
		if err := s.Table(table); err != nil {
			return err
		}
		for j := 0; j < symbols; j++ {
			if err := s.Symbol(fmt.Sprintf("tag%d", j), fmt.Sprintf("v%d", rand.Intn(64))); err != nil {
				return err
			}
		}
		for j := 0; j < columns; j++ {
			if err := s.Float64Column(fmt.Sprintf("f%d", j), rand.Float64()*100); err != nil {
				return err
			}
		}
		if err := s.At(ctx, time.Now()); err != nil {
			return err
		}
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}

	elapsed := time.Since(start)
	rate := float64(rows) / elapsed.Seconds()
	fmt.Printf("Sent %d rows in %v (%.0f rows/sec)\n", rows, elapsed, rate)
	log.Info("benchmark complete",
		zap.Int("rows", rows),
		zap.Duration("elapsed", elapsed),
		zap.Float64("rows_per_sec", rate))
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
