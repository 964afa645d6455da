package cmd

import (
	"fmt"
	"os"

	"github.com/kamir/leonbridge/internal/config"
	"github.com/spf13/cobra"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration",
	Run:   runOnboard,
}

var onboardForce bool

func init() {
	onboardCmd.Flags().BoolVarP(&onboardForce, "force", "f", false, "Overwrite existing config.json")
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) {
	printHeader("🚀 Leonbridge Onboard")
	fmt.Println("Initializing leonbridge...")

	path, _ := config.ConfigPath()

	// If config already exists, do not overwrite unless -f/--force is set.
	if _, err := os.Stat(path); err == nil && !onboardForce {
		fmt.Printf("Config already exists at: %s\n", path)
		fmt.Println("Use --force (-f) to overwrite.")
		return
	}

	cfg := config.DefaultConfig()
	if err := config.Save(cfg); err != nil {
		fmt.Printf("Error writing config: %v\n", err)
		return
	}
	fmt.Printf("✅ Config created at: %s\n", path)

	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit config.json: backend URL + token, allowFrom numbers.")
	fmt.Println("2. Run 'leonbridge bridge' and scan the QR code.")
}
