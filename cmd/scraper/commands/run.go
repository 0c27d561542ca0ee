package commands

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"member-activity/internal/handlers"
	"member-activity/internal/services"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs every configured job on its schedule until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		src, err := a.newSource(ctx)
		if err != nil {
			return err
		}

		var opts []services.RunnerOption
		tg := a.cfg.App.Telegram
		if tg.Token != "" {
			bot, err := tgbotapi.NewBotAPI(tg.Token)
			if err != nil {
				return fmt.Errorf("telegram login failed: %w", err)
			}
			bot.Debug = false
			log.Printf("Authorized on account %s", bot.Self.UserName)

			if tg.Enabled() {
				notifier, err := handlers.NewNotifier(bot, tg.AlertChatID)
				if err != nil {
					return err
				}
				opts = append(opts, services.WithNotifier(notifier))
			}

			handler := handlers.NewMessageHandler(bot, services.NewStandingsService(a.store), a.logger)
			go listen(ctx, bot, handler)
		}

		runner := a.newRunner(src, opts...)
		return services.NewActivityService(runner, a.cfg.App.Jobs, a.logger).Run(ctx)
	},
}

func listen(ctx context.Context, bot *tgbotapi.BotAPI, handler *handlers.MessageHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)
	defer bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			handler.HandleMessage(ctx, update)
		}
	}
}
