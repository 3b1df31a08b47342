package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	addr      string
	password  string
	userLevel int
)

func setup() (*Config, error) {
	var cfg Config
	optional := !rootCmd.PersistentFlags().Changed("config")
	if err := loadConfig(&cfg, cfgFile, optional); err != nil {
		return nil, err
	}
	if err := configureLogging(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var rootCmd = &cobra.Command{
	Use:   "doodoo",
	Short: "Unlimited free stock images.",
	Long: `doodoo serves a searchable, paginated stock image gallery backed by the
Workers search API: a landing page, list pages with cached pagination and
photo detail pages with download options.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gallery web site",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Server.Addr = addr
		}
		log := componentLogger("main")
		if cfg.Workers.Url == "" {
			log.Warn("WORKERS_API_URL is not set; every search will come back empty")
		}

		store, err := NewStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reqCache := NewReqCache(store, nil, WorkersCachePolicy(cfg))
		go reqCache.PurgeExpired(ctx, time.Duration(cfg.Cache.PurgeIntervalMn)*time.Minute)

		api := NewWorkersApi(cfg, reqCache)
		defer api.Close()

		site, err := NewSite(cfg, api, store)
		if err != nil {
			return err
		}
		tracez, cleanup, err := initializeTracing()
		if err != nil {
			return err
		}
		defer cleanup()
		site.tracez = tracez

		return site.Serve(ctx, cfg.Server.Addr)
	},
}

var useraddCmd = &cobra.Command{
	Use:   "useradd <name>",
	Short: "Create or update an admin user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		if password == "" {
			password = os.Getenv("DOODOO_PASSWORD")
		}
		store, err := NewStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.AddUser(args[0], password, userLevel); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %s saved\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigFile, "path to the JSON config file")
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	useraddCmd.Flags().StringVar(&password, "password", "", "password (or set DOODOO_PASSWORD)")
	useraddCmd.Flags().IntVar(&userLevel, "level", 1, "access level")
	rootCmd.AddCommand(serveCmd, useraddCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
