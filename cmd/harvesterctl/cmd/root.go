package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "harvesterctl",
	Short: "Operator tool for the GitHub activity harvester",
	Long: `harvesterctl is the command-line interface for operating the harvester.

Common workflows:

  Trigger an on-demand collection for a subject:
    harvesterctl collect 42

  Inspect the outbox:
    harvesterctl outbox list --status FAILED

  Requeue a failed outbox row after fixing the cause:
    harvesterctl outbox requeue 17

  Inspect a dead-letter stream:
    harvesterctl dlq harvest.evaluation

Configuration:
  Connection settings come from flags or HARVESTER_* environment variables:
    HARVESTER_DATABASE_URL   Postgres connection string
    HARVESTER_REDIS_ADDR     Redis address (default: localhost:6379)`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		viper.SetEnvPrefix("HARVESTER")
		viper.AutomaticEnv()
	})

	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection string")
	viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database-url"))

	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address")
	viper.BindPFlag("redis_addr", rootCmd.PersistentFlags().Lookup("redis-addr"))

	rootCmd.PersistentFlags().String("trigger-stream", "harvest.triggers", "Trigger stream name")
	viper.BindPFlag("trigger_stream", rootCmd.PersistentFlags().Lookup("trigger-stream"))
}
