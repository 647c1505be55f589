package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/parcel/internal/config"
	parcelhttp "github.com/tanq16/parcel/internal/downloaders/http"
	"github.com/tanq16/parcel/internal/metrics"
	"github.com/tanq16/parcel/internal/output"
	"github.com/tanq16/parcel/internal/scheduler"
	"github.com/tanq16/parcel/internal/storage"
	"github.com/tanq16/parcel/internal/utils"
)

var (
	rootDir       string
	configFile    string
	envFile       string
	segments      int
	workers       int
	timeout       time.Duration
	probeTimeout  time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	bearerToken   string
	debug         bool
	logFile       string
	metricsFile   string
	noProgress    bool

	cfg config.Config
)

var ParcelVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "parcel",
	Short:   "Parcel is a segmented HTTP download manager",
	Version: ParcelVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(debug)
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("opening log file: %w", err)
			}
			utils.SetLogOutput(f)
		} else if !debug {
			// the live display owns the terminal
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
		loaded, err := config.Load(configFile, envFile)
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		loaded.Clamp()
		cfg = loaded
		log.Debug().Str("op", "cmd/root").Str("root", cfg.Root).Int("segments", cfg.Segments).Int("workers", cfg.Workers).Msg("Configuration resolved")
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// applyFlags copies every flag the user actually set over the loaded config.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("root") {
		c.Root = rootDir
	}
	if flags.Changed("segments") {
		c.Segments = segments
	}
	if flags.Changed("workers") {
		c.Workers = workers
	}
	if flags.Changed("timeout") {
		c.Timeout = timeout
	}
	if flags.Changed("probe-timeout") {
		c.ProbeTimeout = probeTimeout
	}
	if flags.Changed("keep-alive-timeout") {
		c.KeepAliveTimeout = kaTimeout
	}
	if flags.Changed("user-agent") {
		c.UserAgent = userAgent
	}
	if c.UserAgent == "randomize" {
		c.UserAgent = utils.GetRandomUserAgent()
	}
	if flags.Changed("bearer-token") {
		c.BearerToken = bearerToken
	}
	if flags.Changed("proxy") {
		c.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		c.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		c.ProxyPassword = proxyPassword
	}
	// credentials embedded in the proxy URL are sent separately
	if parsedProxy, err := u.Parse(c.Proxy); err == nil && c.Proxy != "" && parsedProxy.User != nil {
		if c.ProxyUsername == "" {
			c.ProxyUsername = parsedProxy.User.Username()
			if password, set := parsedProxy.User.Password(); set {
				c.ProxyPassword = password
			}
		}
		parsedProxy.User = nil
		c.Proxy = parsedProxy.String()
	}
	if len(headers) > 0 {
		merged := make(map[string]string, len(c.Headers)+len(headers))
		for k, v := range c.Headers {
			merged[k] = v
		}
		for k, v := range utils.ParseHeaderArgs(headers) {
			merged[k] = v
		}
		c.Headers = merged
	}
}

// runJobs drives a batch through the shared engine and reports failures.
func runJobs(ctx context.Context, jobs []scheduler.Job) error {
	root, err := storage.NewOS(cfg.Root)
	if err != nil {
		return err
	}
	client := utils.NewClient(cfg.HTTPClientConfig())
	defer client.Close()

	numWorkers := min(cfg.Workers, len(jobs))
	recorder := metrics.New()
	downloader := parcelhttp.NewDownloader(client, root, parcelhttp.Config{
		Segments:  utils.SegmentsPerLink(cfg.Segments, numWorkers),
		Threshold: cfg.Threshold,
		ChunkSize: cfg.ChunkSize,
	}, recorder)

	log.Debug().Str("op", "cmd/root").Str("root", root.Dir()).Int("jobs", len(jobs)).Int("workers", numWorkers).Msg("Starting downloads")
	display := output.NewManager()
	if noProgress {
		display.Quiet()
	}
	display.StartDisplay()
	results := scheduler.Run(ctx, downloader, jobs, numWorkers, display)
	display.StopDisplay()

	if metricsFile != "" {
		if err := recorder.WriteTextfile(metricsFile); err != nil {
			log.Error().Str("op", "cmd/root").Err(err).Msg("Failed to write metrics")
		}
	}
	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(results))
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "Storage root; every output path is relative to it")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "File of PARCEL_* variables to seed the environment")
	rootCmd.PersistentFlags().IntVarP(&segments, "segments", "s", utils.DefaultSegments, "Connections per file (1 disables segmentation, above 8 enables high-thread-mode)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", utils.DefaultWorkers, "Number of files to download in parallel")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", utils.DefaultTransferTimeout, "Time to wait for a transfer to start (eg. 5s, 2m)")
	rootCmd.PersistentFlags().DurationVar(&probeTimeout, "probe-timeout", utils.DefaultProbeTimeout, "Timeout for the initial HEAD request")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", utils.DefaultKATimeout, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'X-Api-Key: abc'); can be specified multiple times")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "bearer-token", "", "Send 'Authorization: Bearer <token>' on every request")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file on exit")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "Disable the live progress display")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newS3Cmd())
	rootCmd.AddCommand(newGitHubCmd())
	rootCmd.AddCommand(newCleanCmd())
}
