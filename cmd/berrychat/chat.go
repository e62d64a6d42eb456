package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lhdbsbz/berrychat/internal/archive"
	"github.com/lhdbsbz/berrychat/internal/chat"
	"github.com/lhdbsbz/berrychat/internal/console"
	"github.com/lhdbsbz/berrychat/internal/prompts"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a conversation in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// stdout belongs to the transcript.
		setupLogging(os.Stderr, cfg.Log.Level)

		store, err := archive.Open(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctrl := chat.NewController(chat.OptionsFromConfig(cfg, nil))
		defer ctrl.Close()
		ctrl.OnExchangeDone(archive.Recorder(store))

		if location, _ := cmd.Flags().GetString("location"); location != "" {
			if err := ctrl.Submit(location); err != nil {
				return err
			}
		}

		render := console.Plain
		plain, _ := cmd.Flags().GetBool("plain")
		if cfg.Console.Markdown && !plain {
			render = console.Markdown(80)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return console.New(os.Stdin, os.Stdout, ctrl, prompts.Get(cfg.Locale), render).Run(ctx)
	},
}

func init() {
	chatCmd.Flags().Bool("plain", false, "print replies without markdown rendering")
	chatCmd.Flags().String("location", "", "answer the location question up front, e.g. \"Oregon, US\"")
	rootCmd.AddCommand(chatCmd)
}
