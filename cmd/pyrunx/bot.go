package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChiragPatelK/PyRunX/internal/botmsg"
	"github.com/ChiragPatelK/PyRunX/internal/logutil"
	"github.com/ChiragPatelK/PyRunX/internal/runner"
	"github.com/ChiragPatelK/PyRunX/internal/telegram"
)

func newBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot that executes Python snippets",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or PYRUNX_TELEGRAM_BOT_TOKEN)")
			}

			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			msgs, err := botmsg.Load()
			if err != nil {
				return err
			}

			allowed := make(map[int64]bool)
			for _, s := range flagOrViperStringArray(cmd, "telegram-allowed-chat-id", "telegram.allowed_chat_ids") {
				s = strings.TrimSpace(s)
				if s == "" {
					continue
				}
				id, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid telegram.allowed_chat_ids entry %q: %w", s, err)
				}
				allowed[id] = true
			}

			pollTimeout := flagOrViperDuration(cmd, "telegram-poll-timeout", "telegram.poll_timeout")
			if pollTimeout <= 0 {
				pollTimeout = 30 * time.Second
			}
			runCfg := runner.Config{
				PythonBin:       flagOrViperString(cmd, "python-bin", "run.python_bin"),
				Timeout:         flagOrViperDuration(cmd, "run-timeout", "run.timeout"),
				MaxCaptureBytes: flagOrViperInt(cmd, "run-max-capture-bytes", "run.max_capture_bytes"),
			}
			if runCfg.Timeout <= 0 {
				runCfg.Timeout = 12 * time.Second
			}
			maxOutputChars := flagOrViperInt(cmd, "run-max-output-chars", "run.max_output_chars")
			if maxOutputChars <= 0 {
				maxOutputChars = 4096
			}
			maxConc := flagOrViperInt(cmd, "max-concurrency", "bot.max_concurrency")
			if maxConc <= 0 {
				maxConc = 3
			}

			ctx := context.Background()
			httpClient := &http.Client{Timeout: 60 * time.Second}
			api := telegram.NewClient(httpClient, telegram.DefaultBaseURL, token)

			me, err := api.GetMe(ctx)
			if err != nil {
				return err
			}

			if err := api.SetMyCommands(ctx, []telegram.BotCommand{
				{Command: "start", Description: "Start the bot"},
				{Command: "run", Description: "Run Python code"},
				{Command: "cancel", Description: "Cancel the active session"},
				{Command: "help", Description: "How to use"},
			}); err != nil {
				logger.Warn("set_my_commands_error", "error", err.Error())
			}

			logger.Info("bot_start",
				"bot_username", me.Username,
				"bot_id", me.ID,
				"poll_timeout", pollTimeout.String(),
				"run_timeout", runCfg.Timeout.String(),
				"python_bin", runCfg.PythonBin,
				"max_concurrency", maxConc,
				"max_output_chars", maxOutputChars,
			)

			d := newDispatcher(ctx, dispatcherDeps{
				Logger:      logger,
				Msgs:        msgs,
				Send:        api.SendMessage,
				SendChunked: api.SendMessageChunked,
				Typing: func(ctx context.Context, chatID int64) func() {
					return telegram.StartTypingTicker(ctx, api, chatID, 4*time.Second)
				},
				Run: func(ctx context.Context, source string, inputs []string) (runner.Result, error) {
					return runner.Run(ctx, runCfg, source, inputs)
				},
				RunTimeout:     runCfg.Timeout,
				MaxOutputChars: maxOutputChars,
				MaxConcurrency: maxConc,
				AllowedChatIDs: allowed,
			})

			var offset int64
			for {
				updates, next, err := api.GetUpdates(ctx, offset, pollTimeout)
				if err != nil {
					if !telegram.IsPollTimeout(err) {
						logger.Warn("telegram_get_updates_error", "error", err.Error())
						time.Sleep(1 * time.Second)
					}
					continue
				}
				offset = next

				for _, u := range updates {
					if u.Message == nil {
						continue
					}
					d.HandleMessage(ctx, u.Message)
				}
			}
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().StringArray("telegram-allowed-chat-id", nil, "Allowed chat id(s). If empty, allows all.")
	cmd.Flags().Duration("telegram-poll-timeout", 30*time.Second, "Long polling timeout for getUpdates.")
	cmd.Flags().String("python-bin", "python3", "Python interpreter used to run submitted code.")
	cmd.Flags().Duration("run-timeout", 12*time.Second, "Wall-clock timeout per execution.")
	cmd.Flags().Int("run-max-output-chars", 4096, "Maximum characters of program output per reply.")
	cmd.Flags().Int("run-max-capture-bytes", 256*1024, "Maximum bytes of stdout/stderr captured per run.")
	cmd.Flags().Int("max-concurrency", 3, "Maximum executions running at once across all chats.")

	return cmd
}
