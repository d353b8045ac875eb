package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"harvester/internal/store"
	"harvester/internal/store/postgres"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and repair the transactional outbox",
}

var outboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outbox rows by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		statusFlag, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		status := store.OutboxStatus(strings.ToUpper(statusFlag))
		switch status {
		case store.OutboxPending, store.OutboxPublished, store.OutboxFailed:
		default:
			cmd.Printf("Unknown status %q: expected PENDING, PUBLISHED or FAILED\n", statusFlag)
			return fmt.Errorf("unknown status %q", statusFlag)
		}

		messages, err := st.ListOutbox(cmd.Context(), status, limit)
		if err != nil {
			cmd.Printf("Failed to list outbox: %v\n", err)
			return err
		}

		if len(messages) == 0 {
			cmd.Printf("No %s outbox rows.\n", status)
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tMESSAGE ID\tEVENT TYPE\tCREATED AT\tPUBLISHED AT")
		for _, m := range messages {
			publishedAt := ""
			if m.PublishedAt != nil {
				publishedAt = m.PublishedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				m.ID, m.MessageID, m.EventType, m.CreatedAt.Format(time.RFC3339), publishedAt)
		}
		return w.Flush()
	},
}

var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue [id]",
	Short: "Move a FAILED outbox row back to PENDING",
	Long:  `The publisher never retries FAILED rows on its own. After fixing the failure cause, requeue the row and the next publisher tick picks it up.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			cmd.Printf("Invalid outbox id %q\n", args[0])
			return err
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.RequeueOutbox(cmd.Context(), id); err != nil {
			cmd.Printf("Failed to requeue: %v\n", err)
			return err
		}

		cmd.Printf("Outbox row %d requeued.\n", id)
		return nil
	},
}

func openStore(cmd *cobra.Command) (*postgres.Store, error) {
	url := viper.GetString("database_url")
	if url == "" {
		cmd.Println("Database URL not set. Use --database-url or HARVESTER_DATABASE_URL")
		return nil, fmt.Errorf("database url not set")
	}
	return postgres.New(cmd.Context(), url)
}

func init() {
	rootCmd.AddCommand(outboxCmd)
	outboxCmd.AddCommand(outboxListCmd)
	outboxCmd.AddCommand(outboxRequeueCmd)

	outboxListCmd.Flags().StringP("status", "s", "FAILED", "Status to list (PENDING, PUBLISHED, FAILED)")
	outboxListCmd.Flags().IntP("limit", "l", 50, "Maximum rows to list")
}
