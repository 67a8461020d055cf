// Package cli provides the transit command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/meridian-labs/transit/internal/client"
	"github.com/meridian-labs/transit/internal/constants"
	transithttp "github.com/meridian-labs/transit/internal/http"
	"github.com/meridian-labs/transit/internal/logging"
	"github.com/meridian-labs/transit/internal/transfer"
)

// Version is stamped by the build via LDFLAGS.
var Version = "dev"

var (
	// Backend selection
	backend   string
	endpoint  string
	bucket    string
	container string
	sasURL    string
	region    string
	accessKey string
	secretKey string
	token     string

	// Proxy
	proxyMode     string
	proxyHost     string
	proxyPort     int
	proxyUser     string
	proxyPassword string
	noProxy       string

	// Transfer tuning
	concurrency int
	chunkSizeMB int64
	validate    bool
	budget      time.Duration

	verbose bool
	quiet   bool

	logger *logging.Logger
)

// NewRootCmd builds the root command and its subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "transit",
		Short: "Chunked, resumable object transfers for S3, Azure Blob, and HTTP object stores",
		Long: `transit ` + Version + ` - concurrent range transfers with conditional
consistency checks, content validation, and resumable downloads.

Select a backend with --backend:
  http   S3-compatible JSON/REST endpoint (--endpoint, --bucket, --token)
  s3     Amazon S3 or compatible (--bucket, --region, optionally --endpoint)
  azure  Azure Blob Storage (--sas-url, --container)`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefault()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&backend, "backend", "http", "Storage backend: http, s3, or azure")
	pf.StringVar(&endpoint, "endpoint", "", "Service endpoint URL (http backend, or S3-compatible endpoint)")
	pf.StringVar(&bucket, "bucket", "", "Bucket name (http and s3 backends)")
	pf.StringVar(&container, "container", "", "Container name (azure backend)")
	pf.StringVar(&sasURL, "sas-url", "", "Account SAS URL (azure backend)")
	pf.StringVar(&region, "region", "", "AWS region (s3 backend)")
	pf.StringVar(&accessKey, "access-key", "", "Access key ID (s3 backend; falls back to the SDK credential chain)")
	pf.StringVar(&secretKey, "secret-key", "", "Secret access key (s3 backend)")
	pf.StringVar(&token, "token", "", "Bearer token (http backend)")

	pf.StringVar(&proxyMode, "proxy-mode", "", "Proxy mode: no-proxy, system, basic, or ntlm")
	pf.StringVar(&proxyHost, "proxy-host", "", "Proxy host")
	pf.IntVar(&proxyPort, "proxy-port", 0, "Proxy port")
	pf.StringVar(&proxyUser, "proxy-user", "", "Proxy username")
	pf.StringVar(&proxyPassword, "proxy-password", "", "Proxy password")
	pf.StringVar(&noProxy, "no-proxy", "", "Comma-separated proxy bypass list")

	pf.IntVar(&concurrency, "concurrency", constants.DefaultConcurrency, "Parallel chunk transfers per object (1-32)")
	pf.Int64Var(&chunkSizeMB, "chunk-size", constants.ChunkSize/(1024*1024), "Chunk size in MiB")
	pf.BoolVar(&validate, "validate", false, "Verify chunk content with MD5 checksums")
	pf.DurationVar(&budget, "budget", 0, "Wall-clock budget for a transfer (0 = unlimited)")

	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	rootCmd.Version = Version

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newPutCmd())
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newStatCmd())
	rootCmd.AddCommand(newRmCmd())

	return rootCmd
}

func proxyOptions() transithttp.ProxyOptions {
	return transithttp.ProxyOptions{
		Mode:     proxyMode,
		Host:     proxyHost,
		Port:     proxyPort,
		User:     proxyUser,
		Password: proxyPassword,
		NoProxy:  noProxy,
	}
}

// validateTransferFlags bounds the user-facing tuning flags before any
// request goes out. The core accepts any positive chunk size; the CLI keeps
// operators inside the range the backends are provisioned for.
func validateTransferFlags() error {
	size := chunkSizeMB * 1024 * 1024
	if size < constants.MinChunkSize || size > constants.MaxChunkSize {
		return fmt.Errorf("--chunk-size %dMiB out of range (%d-%d MiB)",
			chunkSizeMB,
			constants.MinChunkSize/(1024*1024),
			constants.MaxChunkSize/(1024*1024))
	}
	return nil
}

func transferConfig() transfer.Config {
	cfg := transfer.DefaultConfig()
	cfg.Concurrency = concurrency
	cfg.ChunkSize = chunkSizeMB * 1024 * 1024
	cfg.ValidateContent = validate
	cfg.Budget = budget
	return cfg
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Execute runs the CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient() (*client.Client, error) {
	if err := validateTransferFlags(); err != nil {
		return nil, err
	}
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	return client.New(store, transferConfig()), nil
}
