package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "leonbridge",
	Short: "WhatsApp bridge for the Leon agent backend",
	Long:  "leonbridge relays messages between a personal WhatsApp session and an HTTP agent backend.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func printHeader(title string) {
	c := color.New(color.FgCyan, color.Bold)
	c.Println(title)
	fmt.Println()
}
