package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/teambot/internal/api"
	"github.com/joescharf/teambot/internal/chat"
	"github.com/joescharf/teambot/internal/conversation"
	"github.com/joescharf/teambot/internal/daemon"
	"github.com/joescharf/teambot/internal/notify"
	"github.com/joescharf/teambot/internal/router"
	"github.com/joescharf/teambot/internal/store"
	"github.com/joescharf/teambot/internal/telegram"
)

const shutdownTimeout = 5 * time.Second

var serveStopForce bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot in the foreground",
	Long: `Run the bot: poll Telegram for messages, drive idea and task
conversations and announce new ideas in the group chat.

When api.port is set, a read-only HTTP API is served alongside the bot.
Stop with Ctrl-C, SIGTERM or 'teambot serve stop'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the bot is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP API port (0 disables the API)")
	_ = viper.BindPFlag("api.port", serveCmd.Flags().Lookup("port"))

	serveStopCmd.Flags().BoolVar(&serveStopForce, "force", false, "Kill the bot instead of asking it to shut down")

	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the PID file guarding the state directory.
func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "teambot.pid"))
}

// botClient is the chat transport the bot runs on.
type botClient interface {
	chat.Sender
	Run(ctx context.Context, handle func(context.Context, chat.Inbound)) error
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}

	token := viper.GetString("bot.token")
	if token == "" {
		return fmt.Errorf("bot.token is not set (set TEAMBOT_BOT_TOKEN or run 'teambot config init')")
	}
	admins, err := adminIDs()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would start bot (db %s, group chat %d, api port %d)",
			viper.GetString("db_path"), viper.GetInt64("bot.group_chat_id"), viper.GetInt("api.port"))
		return nil
	}

	release, err := pidFile().Acquire()
	if err != nil {
		return err
	}
	defer release()

	s, err := getStore()
	if err != nil {
		return err
	}
	defer func() {
		_ = s.Close()
		dataStore = nil
	}()

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	client, err := telegram.New(telegram.Config{
		Token:          token,
		APIEndpoint:    viper.GetString("bot.api_endpoint"),
		TimeoutSeconds: viper.GetInt("bot.poll_timeout"),
		Debug:          verbose,
	}, logger)
	if err != nil {
		return err
	}

	ui.Success("Bot started (pid file %s)", pidFile().Path)
	return runBot(ctx, s, client, admins, logger)
}

// runBot wires the conversation engine, router and notifications onto the
// transport and blocks until ctx is cancelled.
func runBot(ctx context.Context, s store.Store, client botClient, admins []int64, logger *slog.Logger) error {
	dispatcher := notify.NewDispatcher(client, viper.GetInt64("bot.group_chat_id"), logger)
	engine := conversation.NewEngine(s, dispatcher, client, logger,
		conversation.WithTTL(viper.GetDuration("bot.flow_ttl")))
	r := router.New(s, engine, client, admins, logger)

	var apiSrv *http.Server
	if port := viper.GetInt("api.port"); port > 0 {
		apiSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.NewServer(s).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("api listening", "addr", apiSrv.Addr)
			if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("api server failed", "error", err)
			}
		}()
	}

	err := client.Run(ctx, func(ctx context.Context, in chat.Inbound) {
		if err := r.Dispatch(ctx, in); err != nil {
			logger.Error("handle message", "user_id", in.UserID, "chat_id", in.ChatID, "error", err)
		}
	})

	if apiSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := apiSrv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("api shutdown", "error", serr)
		}
	}

	logger.Info("bot stopped")
	return err
}

func serveStopRun() error {
	pf := pidFile()
	if dryRun {
		pid, err := pf.Read()
		if err != nil {
			return fmt.Errorf("bot %w", daemon.ErrNotRunning)
		}
		ui.DryRunMsg("Would signal pid %d", pid)
		return nil
	}

	pid, err := pf.Stop(serveStopForce)
	if err != nil {
		return err
	}
	if serveStopForce {
		ui.Success("Killed bot (pid %d)", pid)
	} else {
		ui.Success("Sent shutdown signal to bot (pid %d)", pid)
	}
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	if pid, alive := pf.IsRunning(); alive {
		ui.Success("Bot is running (pid %d)", pid)
		return nil
	}
	ui.Info("Bot is not running")
	return nil
}
