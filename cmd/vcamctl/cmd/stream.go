package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Control the frame delivery stream",
}

var streamStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start fixed-cadence frame delivery",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiCall("POST", "/api/stream/start", nil, nil); err != nil {
			return err
		}
		fmt.Println("Stream started")
		return nil
	},
}

var streamStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop frame delivery and release the mapping",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiCall("POST", "/api/stream/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("Stream stopped")
		return nil
	},
}

func init() {
	streamCmd.AddCommand(streamStartCmd)
	streamCmd.AddCommand(streamStopCmd)
	rootCmd.AddCommand(streamCmd)
}
