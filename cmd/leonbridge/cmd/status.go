package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/kamir/leonbridge/internal/config"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running bridge's health",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", cfg.Server.Addr()))
	if err != nil {
		fmt.Printf("Is the bridge running? %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var health struct {
		Status         string  `json:"status"`
		WhatsAppReady  bool    `json:"whatsapp_ready"`
		MyNumber       *string `json:"my_number"`
		ReconnectCount int     `json:"reconnect_count"`
		UptimeSeconds  int     `json:"uptime_seconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		fmt.Printf("Bad health response: %v\n", err)
		os.Exit(1)
	}

	number := "(not paired)"
	if health.MyNumber != nil {
		number = *health.MyNumber
	}
	fmt.Printf("Status:     %s\n", health.Status)
	fmt.Printf("WhatsApp:   ready=%v number=%s\n", health.WhatsAppReady, number)
	fmt.Printf("Reconnects: %d\n", health.ReconnectCount)
	fmt.Printf("Uptime:     %ds\n", health.UptimeSeconds)
}
