package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/kamir/leonbridge/internal/config"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a proactive message through the running bridge",
	Run:   runSend,
}

var (
	sendNumber  string
	sendMessage string
)

func init() {
	sendCmd.Flags().StringVarP(&sendNumber, "number", "n", "", "Recipient phone number")
	sendCmd.Flags().StringVarP(&sendMessage, "message", "m", "", "Message text")
	sendCmd.MarkFlagRequired("number")
	sendCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	payload, _ := json.Marshal(map[string]string{
		"number":  sendNumber,
		"message": sendMessage,
	})

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(fmt.Sprintf("http://%s/send", cfg.Server.Addr()), "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Printf("Is the bridge running? %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Send failed (%d): %s\n", resp.StatusCode, string(body))
		os.Exit(1)
	}
	fmt.Println("✅ Sent.")
}
