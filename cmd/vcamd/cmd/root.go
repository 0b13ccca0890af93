package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vcamd",
	Short: "Virtual camera frame relay daemon",
	Long: `vcamd relays decoded video frames from an external RTMP producer process
into a downstream video sink at a fixed cadence, and keeps that producer
alive under a bounded restart policy.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vcamd/config.yaml)")
}
