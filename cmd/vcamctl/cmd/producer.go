package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// statusResponse mirrors the control API status payload.
type statusResponse struct {
	State           string    `json:"state"`
	Terminal        bool      `json:"terminal"`
	PID             int       `json:"pid,omitempty"`
	ListenPort      int       `json:"listen_port,omitempty"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	UptimeSeconds   float64   `json:"uptime_seconds,omitempty"`
	CrashesInWindow int       `json:"crashes_in_window"`
	CPUPercent      float64   `json:"cpu_percent,omitempty"`
	RSSBytes        uint64    `json:"rss_bytes,omitempty"`
	StreamActive    bool      `json:"stream_active"`
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the producer process",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{}
		if cmd.Flags().Changed("port") {
			port, _ := cmd.Flags().GetInt("port")
			body["listen_port"] = port
		}
		if cmd.Flags().Changed("key") {
			key, _ := cmd.Flags().GetString("key")
			body["stream_key"] = key
		}
		if cmd.Flags().Changed("verbose") {
			verbose, _ := cmd.Flags().GetBool("verbose")
			body["verbose"] = verbose
		}

		var status statusResponse
		if err := apiCall("POST", "/api/producer/start", body, &status); err != nil {
			return err
		}
		fmt.Printf("Producer started (pid %d, port %d)\n", status.PID, status.ListenPort)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the producer process",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiCall("POST", "/api/producer/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("Stop requested; producer will exit within the escalation window")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show producer and stream status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var status statusResponse
		if err := apiCall("GET", "/api/producer/status", nil, &status); err != nil {
			return err
		}

		if IsJSONOutput() {
			return json.NewEncoder(os.Stdout).Encode(status)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Property", "Value")

		state := status.State
		if status.Terminal {
			state += " (terminal, manual restart required)"
		}
		table.Append([]string{"State", state})
		table.Append([]string{"Stream", map[bool]string{true: "active", false: "stopped"}[status.StreamActive]})
		if status.PID > 0 {
			table.Append([]string{"PID", fmt.Sprintf("%d", status.PID)})
			table.Append([]string{"Port", fmt.Sprintf("%d", status.ListenPort)})
			table.Append([]string{"Uptime", fmt.Sprintf("%.0fs", status.UptimeSeconds)})
			table.Append([]string{"CPU", fmt.Sprintf("%.1f%%", status.CPUPercent)})
			table.Append([]string{"RSS", fmt.Sprintf("%d MB", status.RSSBytes/(1024*1024))})
		}
		table.Append([]string{"Crashes in window", fmt.Sprintf("%d", status.CrashesInWindow)})
		table.Render()
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show captured producer output",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Lines []string `json:"lines"`
		}
		if err := apiCall("GET", "/api/producer/logs", nil, &result); err != nil {
			return err
		}
		for _, line := range result.Lines {
			fmt.Println(line)
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show producer lifecycle events",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Events []struct {
				Time     time.Time `json:"time"`
				State    string    `json:"state"`
				PID      int       `json:"pid,omitempty"`
				ExitCode int       `json:"exit_code,omitempty"`
				Crash    bool      `json:"crash,omitempty"`
				Message  string    `json:"message,omitempty"`
			} `json:"events"`
		}
		if err := apiCall("GET", "/api/producer/events", nil, &result); err != nil {
			return err
		}

		if IsJSONOutput() {
			return json.NewEncoder(os.Stdout).Encode(result)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Time", "State", "PID", "Message")
		for _, ev := range result.Events {
			table.Append([]string{
				ev.Time.Format("15:04:05"),
				ev.State,
				fmt.Sprintf("%d", ev.PID),
				ev.Message,
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	startCmd.Flags().Int("port", 0, "override the configured RTMP listen port")
	startCmd.Flags().String("key", "", "override the configured stream key")
	startCmd.Flags().Bool("verbose", false, "enable producer debug logging")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(eventsCmd)
}
