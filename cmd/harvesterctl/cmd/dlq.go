package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"harvester/internal/broker"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq [stream]",
	Short: "List dead-lettered messages of an event stream",
	Long:  `Read the dead-letter sibling of an event stream (e.g. harvest.evaluation reads harvest.evaluation.dlq). Dead-lettered messages stay until an operator resolves them.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt64("limit")

		rdb := redis.NewClient(&redis.Options{Addr: viper.GetString("redis_addr")})
		defer rdb.Close()

		stream := args[0] + ".dlq"
		entries, err := rdb.XRevRangeN(cmd.Context(), stream, "+", "-", limit).Result()
		if err != nil {
			cmd.Printf("Failed to read %s: %v\n", stream, err)
			return err
		}

		if len(entries) == 0 {
			cmd.Printf("No dead-lettered messages on %s.\n", stream)
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ENTRY ID\tMESSAGE ID\tEVENT TYPE\tREASON")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.ID,
				stringField(e.Values, broker.FieldMessageID),
				stringField(e.Values, broker.FieldEventType),
				truncate(stringField(e.Values, "reason"), 60),
			)
		}
		return w.Flush()
	},
}

func stringField(values map[string]any, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	rootCmd.AddCommand(dlqCmd)

	dlqCmd.Flags().Int64P("limit", "l", 20, "Maximum messages to list")
}
