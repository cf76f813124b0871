package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/teambot/internal/output"
	"github.com/joescharf/teambot/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "teambot",
	Short: "Team chat bot for collecting ideas and tasks",
	Long: `teambot is a Telegram bot that walks team members through submitting
ideas and creating tasks, stores them in SQLite, awards karma for ideas and
announces new ideas in the team's group chat.

Run 'teambot serve' to start the bot.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/teambot/config.yaml)")
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TEAMBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults() {
	dir, _ := configDirFunc()

	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "teambot.db"))
	viper.SetDefault("bot.token", "")
	viper.SetDefault("bot.api_endpoint", "")
	viper.SetDefault("bot.group_chat_id", 0)
	viper.SetDefault("bot.admin_ids", []int64{})
	viper.SetDefault("bot.poll_timeout", 30)
	viper.SetDefault("bot.flow_ttl", "10m")
	viper.SetDefault("api.port", 0)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config/version commands run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// newLogger builds the structured logger for long-running commands from the
// log.level and log.format settings.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		return nil, fmt.Errorf("invalid log.level: %w", err)
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	switch format := viper.GetString("log.format"); format {
	case "text", "":
		return slog.New(slog.NewTextHandler(ui.ErrOut, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(ui.ErrOut, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log.format %q (want text or json)", format)
	}
}

// adminIDs reads bot.admin_ids, accepting a YAML list or a comma-separated
// env value.
func adminIDs() ([]int64, error) {
	var items []string
	switch v := viper.Get("bot.admin_ids").(type) {
	case nil:
		return nil, nil
	case []int64:
		return v, nil
	case string:
		items = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	case []any:
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
	default:
		return nil, fmt.Errorf("invalid bot.admin_ids value %v", v)
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, err := strconv.ParseInt(strings.TrimSpace(item), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bot.admin_ids entry %q", item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
