package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haivivi/voysis/go/pkg/cli"
	"github.com/haivivi/voysis/go/pkg/history"
	"github.com/haivivi/voysis/go/pkg/voysis"
)

var (
	cfgFile     string
	contextName string
	outputFile  string
	inputFile   string
	outputJSON  bool
	verbose     bool
	metricsAddr string

	globalConfig *cli.Config
	status       = cli.NewStatus(nil, cli.DefaultTheme)
	registry     = prometheus.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:   "voysis",
	Short: "Voysis voice query CLI",
	Long: `Voysis CLI - send text and audio queries to a Voysis service.

Configuration is stored in ~/.giztoy/voysis/ and supports multiple contexts,
similar to kubectl's context management.

Examples:
  # Set up a context
  voysis config add-context demo --host demo.voysis.io --refresh-token RT

  # Ask a question
  voysis query text "show me red shoes"

  # Speak a question; press Enter to stop early
  voysis query audio --save question.wav

  # Rate the answer
  voysis query rate <query-id> --rating 5`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: startMetrics,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.giztoy/voysis/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write results to a file instead of stdout")
	rootCmd.PersistentFlags().StringVarP(&inputFile, "file", "f", "", "request file (YAML or JSON, - for stdin)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var err error
	globalConfig, err = cli.LoadConfig(cfgFile)
	if err != nil {
		status.Warn("config: %v", err)
	}
}

func startMetrics(cmd *cobra.Command, _ []string) error {
	if metricsAddr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              metricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", metricsAddr, "error", err)
		}
	}()
	slog.Debug("serving metrics", "addr", metricsAddr)
	cobra.OnFinalize(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return nil
}

func getConfig() (*cli.Config, error) {
	if globalConfig == nil {
		return nil, errors.New("configuration not initialized")
	}
	return globalConfig, nil
}

func getContext() (*cli.Context, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	ctx, err := cfg.ResolveContext(contextName)
	if errors.Is(err, cli.ErrNoContext) {
		return nil, errors.New("no context specified. Use -c flag or set a default context with 'voysis config use-context'")
	}
	return ctx, err
}

// clientInfo builds the X-Voysis-Client-Info header value.
func clientInfo() string {
	info, _ := json.Marshal(map[string]string{
		"sdk":        "voysis-go/" + voysis.Version,
		"os":         runtime.GOOS + "/" + runtime.GOARCH,
		"instanceId": uuid.NewString(),
	})
	return string(info)
}

// sessionOptions maps a context onto session options.
func sessionOptions(c *cli.Context) []voysis.Option {
	opts := []voysis.Option{
		voysis.WithRefreshToken(c.RefreshToken),
		voysis.WithUserID(c.UserID),
		voysis.WithIgnoreVAD(c.IgnoreVAD),
		voysis.WithClientInfo(clientInfo()),
		voysis.WithLogger(slog.Default()),
		voysis.WithMetrics(registry),
	}
	if c.WebSocketURL != "" {
		opts = append(opts, voysis.WithWebSocketURL(c.WebSocketURL))
	}
	if d := c.Deadline(); d > 0 {
		opts = append(opts, voysis.WithStreamingDeadline(d))
	}
	return opts
}

func newSession(c *cli.Context, extra ...voysis.Option) (*voysis.Session, error) {
	slog.Debug("using context", "context", c.Name, "host", c.Host)
	return voysis.NewSession(c.Host, c.AudioProfileID, append(sessionOptions(c), extra...)...)
}

func openHistory(c *cli.Context) (*history.Store, error) {
	paths, err := cli.NewPaths(cli.AppName)
	if err != nil {
		return nil, err
	}
	dir := paths.HistoryDir(c.Name)
	if cfgFile != "" {
		dir = filepath.Join(globalConfig.Dir(), "history", c.Name)
	}
	if err := cli.EnsureDir(dir); err != nil {
		return nil, err
	}
	return history.Open(history.Options{Dir: dir, Logger: slog.Default()})
}

func outputFormat() cli.OutputFormat {
	if outputJSON {
		return cli.FormatJSON
	}
	return cli.FormatYAML
}

func outputResult(result any) error {
	return cli.Output(result, cli.OutputOptions{
		Format: outputFormat(),
		File:   outputFile,
	})
}
