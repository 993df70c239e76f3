package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"imagetolink/internal/config"
	"imagetolink/internal/logging"
	"imagetolink/internal/redis"
	"imagetolink/internal/settings"
	"imagetolink/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("error: "+err.Error()))
		os.Exit(1)
	}
}

// app holds what every command needs once flags are parsed.
type app struct {
	cfg *config.Config
	log *logging.Logger

	db  *sql.DB
	rdb *redis.Client
}

func newRootCommand() *cobra.Command {
	a := &app{}
	v := viper.New()
	v.SetEnvPrefix("IMAGETOLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "imagetolink",
		Short:         "Paste images into markdown notes as links to a remote image host",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(v)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().String("config", "", "config file (json, jsonc or yaml); env IMAGETOLINK_CONFIG")
	root.PersistentFlags().String("log-level", "", "log level override: debug, info, warn, error")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newServeCommand(a))
	root.AddCommand(newPasteCommand(a))
	root.AddCommand(newSettingsCommand(a))
	root.AddCommand(newTokenCommand(a))
	root.AddCommand(newOrphansCommand())
	return root
}

func (a *app) init(v *viper.Viper) error {
	path := v.GetString("config")
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case path == "" && errors.Is(err, fs.ErrNotExist):
		// no config.json next to us; run on defaults
		cfg = config.Default()
	default:
		return fmt.Errorf("load config: %w", err)
	}
	if lvl := v.GetString("log_level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Log)
	logging.SetDefault(a.log)
	return nil
}

func (a *app) close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// database opens and migrates the configured database on first use.
func (a *app) database() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	dbType := a.cfg.Server.Database
	a.log.Debug("opening database", "type", dbType)
	db, err := storage.Open(dbType, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db, dbType); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	a.db = db
	return db, nil
}

// redisClient connects when redis is enabled and returns nil otherwise.
func (a *app) redisClient() (*redis.Client, error) {
	if !a.cfg.Redis.Enabled {
		return nil, nil
	}
	if a.rdb != nil {
		return a.rdb, nil
	}
	rdb, err := redis.NewRedisClient(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}
	a.rdb = rdb
	return rdb, nil
}

type watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// settingsManager builds the settings manager for the configured backend.
// The returned watcher reports changes made by other processes.
func (a *app) settingsManager() (*settings.Manager, watcher, error) {
	c, err := settings.CipherFromEnv()
	if err != nil {
		return nil, nil, err
	}

	var (
		store settings.Store
		w     watcher
	)
	switch a.cfg.Settings.Backend {
	case config.SettingsBackendSQL, config.SettingsBackendRedis:
		db, err := a.database()
		if err != nil {
			return nil, nil, err
		}
		store = settings.NewSQLStore(db)
		if a.cfg.Settings.Backend == config.SettingsBackendRedis {
			rdb, err := a.redisClient()
			if err != nil {
				return nil, nil, err
			}
			cached := settings.NewCachedStore(store, rdb, a.log)
			store, w = cached, cached
		}
	default:
		fileStore := settings.NewFileStore(a.cfg.Settings.Path, a.log)
		store, w = fileStore, fileStore
	}
	return settings.NewManager(store, c, a.log), w, nil
}
