package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sardine-ai/spritecollab-server/assets"
	"github.com/sardine-ai/spritecollab-server/cache"
	"github.com/sardine-ai/spritecollab-server/collab"
	"github.com/sardine-ai/spritecollab-server/config"
	"github.com/sardine-ai/spritecollab-server/credits"
	"github.com/sardine-ai/spritecollab-server/reporting"
	"github.com/sardine-ai/spritecollab-server/server"
	"github.com/sardine-ai/spritecollab-server/source"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "spritecollab-server",
		Short:         "Serves SpriteCollab data kept in sync with the upstream repository",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (can also use SPRITECOLLAB_CONFIG_FILE)")
	root.AddCommand(newServeCmd(&cfgFile))
	return root
}

// serveFlags maps command line flags to config keys.
var serveFlags = map[string]string{
	"workdir":    "workdir",
	"local-dir":  "local_dir",
	"addr":       "server.addr",
	"auth-key":   "server.auth_key",
	"redis-addr": "redis.addr",
	"schedule":   "refresh.schedule",
	"log-level":  "log.level",
}

func newServeCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Refresh the data periodically and serve it over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := loadViper(cmd, *cfgFile)
			if err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			cfg.ConfigureLogging()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := serve(ctx, cfg); err != nil {
				logrus.WithError(err).Error("server stopped")
				return err
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.String("workdir", "", "directory holding the working copy")
	flags.String("local-dir", "", "serve data from this directory instead of cloning")
	flags.String("addr", "", "address to listen on")
	flags.String("auth-key", "", "API key required by data endpoints")
	flags.String("redis-addr", "", "host:port of the Redis cache")
	flags.String("schedule", "", "refresh schedule, e.g. @every 10m")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	return cmd
}

// loadViper builds the configuration from file, environment and the flags
// set on cmd.
func loadViper(cmd *cobra.Command, cfgFile string) (*viper.Viper, error) {
	if cfgFile == "" {
		cfgFile = os.Getenv(config.EnvPrefix + "_CONFIG_FILE")
	}
	v, err := config.New(cfgFile)
	if err != nil {
		return nil, err
	}
	for flag, key := range serveFlags {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return v, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	store, err := cache.NewRedisStore(ctx, cfg.CacheConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logrus.WithError(err).Warn("error closing redis")
		}
	}()
	logrus.Info("Connected to Redis.")

	sinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return err
	}
	reports := reporting.New(sinks...)

	repo, err := buildRepository(cfg)
	if err != nil {
		return err
	}

	var prewarmers []collab.PreWarmer
	var resolver *credits.Resolver
	if cfg.Discord.BotToken != "" {
		resolver = credits.NewResolver(cfg.Discord.APIURL, cfg.Discord.BotToken, store)
		prewarmers = append(prewarmers, resolver)
	}

	sc, err := collab.New(ctx, repo, reports, store, prewarmers...)
	if err != nil {
		return err
	}

	scheduler, err := collab.NewScheduler(ctx, sc, cfg.Refresh.Schedule)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.NewServer(ctx, sc, assets.NewURLBuilder(cfg.Server.URL, cfg.Git.AssetsURL))
	srv.AuthKey = cfg.Server.AuthKey
	if resolver != nil {
		srv.Credits = resolver
	}
	defer srv.Stop()

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			logrus.WithError(err).Error("error shutting down server")
		}
	}()
	return srv.Start(cfg.Server.Addr)
}

func buildRepository(cfg *config.Config) (source.Repository, error) {
	if cfg.LocalDir != "" {
		return source.NewFileRepository("local", cfg.LocalDir)
	}
	return source.NewGitRepository(cfg.Workdir, cfg.Git.Repo, cfg.Git.Branch, cfg.Git.Token)
}

func buildSinks(ctx context.Context, cfg *config.Config) ([]reporting.Sink, error) {
	sinks := []reporting.Sink{reporting.NewLogSink()}
	if cfg.Reporting.WebhookURL != "" {
		sinks = append(sinks, reporting.NewWebhookSink(cfg.Reporting.WebhookURL, cfg.Reporting.FailureSilence))
	}
	if cfg.Reporting.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating storage client: %w", err)
		}
		sinks = append(sinks, &reporting.GCSSink{Client: client, BucketName: cfg.Reporting.GCSBucket})
	}
	if cfg.Reporting.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Reporting.S3Region))
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		sinks = append(sinks, &reporting.S3Sink{Client: s3.NewFromConfig(awsCfg), BucketName: cfg.Reporting.S3Bucket})
	}
	return sinks, nil
}
