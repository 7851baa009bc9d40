package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/channels/cli"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run the agent against a local stdin/stdout REPL, ignoring configured external channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}

		cliChannel := cli.New(rt.bus, func(ctx context.Context, content string) (string, error) {
			return rt.loop.ProcessDirect(ctx, content, sessions.DefaultKey("cli", cli.ChatID), "cli", cli.ChatID)
		})
		rt.channelMgr.RegisterChannel("cli", cliChannel)

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		rt.start(ctx)
		select {
		case <-ctx.Done():
		case <-cliChannel.Done():
			cancel()
		}
		rt.stop(context.Background())
		return nil
	},
}
