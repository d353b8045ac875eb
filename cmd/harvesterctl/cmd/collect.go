package cmd

import (
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"harvester/pkg/api"
)

var collectCmd = &cobra.Command{
	Use:   "collect [subject_id]",
	Short: "Trigger an on-demand collection for a subject",
	Long:  `Append a trigger entry to the trigger stream. The harvester picks it up and queues the subject at HIGH priority; if the subject is already queued or running, the trigger is absorbed.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subjectID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || subjectID <= 0 {
			return fmt.Errorf("invalid subject id %q: expected a positive integer", args[0])
		}

		rdb := redis.NewClient(&redis.Options{Addr: viper.GetString("redis_addr")})
		defer rdb.Close()

		stream := viper.GetString("trigger_stream")
		id, err := rdb.XAdd(cmd.Context(), &redis.XAddArgs{
			Stream: stream,
			Values: map[string]any{api.TriggerFieldUserID: strconv.FormatInt(subjectID, 10)},
		}).Result()
		if err != nil {
			cmd.Printf("Failed to append trigger: %v\n", err)
			return err
		}

		cmd.Printf("Trigger %s appended to %s for subject %d\n", id, stream, subjectID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
}
