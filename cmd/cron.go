package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/cron"
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Manage scheduled jobs in the gateway's cron store (§4.8)",
}

var (
	cronAtMs    int64
	cronEvery   int64
	cronExpr    string
	cronDeliver bool
	cronChannel string
	cronTo      string
)

var cronAddCmd = &cobra.Command{
	Use:   "add <name> <message>",
	Short: "Schedule a one-shot, interval, or cron-expression job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCronStore()
		if err != nil {
			return err
		}
		svc := cron.NewService(store, nil, nil)

		kind := cron.KindAt
		switch {
		case cronExpr != "":
			kind = cron.KindCron
		case cronEvery > 0:
			kind = cron.KindEvery
		}

		id, err := svc.Add(context.Background(), args[0], kind, cronAtMs, cronEvery, cronExpr, args[1], cronDeliver, cronChannel, cronTo)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every scheduled job",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCronStore()
		if err != nil {
			return err
		}
		svc := cron.NewService(store, nil, nil)
		for _, j := range svc.List() {
			fmt.Printf("%s\t%s\t%s\tnext=%s\n", j.ID, j.Name, j.Kind, strconv.FormatInt(j.NextRunMs, 10))
		}
		return nil
	},
}

var cronRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a scheduled job by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCronStore()
		if err != nil {
			return err
		}
		svc := cron.NewService(store, nil, nil)
		return svc.Remove(context.Background(), args[0])
	},
}

func openCronStore() (*cron.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cron.NewStore(cfg.Cron.JobsFile)
}

func init() {
	cronAddCmd.Flags().Int64Var(&cronAtMs, "at-ms", 0, "unix millis for a one-shot job")
	cronAddCmd.Flags().Int64Var(&cronEvery, "every-seconds", 0, "interval in seconds for a repeating job")
	cronAddCmd.Flags().StringVar(&cronExpr, "cron", "", "5-field cron expression")
	cronAddCmd.Flags().BoolVar(&cronDeliver, "deliver", false, "deliver the result to a channel/chat when the job runs")
	cronAddCmd.Flags().StringVar(&cronChannel, "channel", "", "channel to deliver to, with --deliver")
	cronAddCmd.Flags().StringVar(&cronTo, "to", "", "chat ID to deliver to, with --deliver")

	cronCmd.AddCommand(cronAddCmd, cronListCmd, cronRemoveCmd)
}
