package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kamir/leonbridge/internal/bridge"
	"github.com/kamir/leonbridge/internal/config"
	"github.com/kamir/leonbridge/internal/mirror"
	"github.com/kamir/leonbridge/internal/relay"
	"github.com/kamir/leonbridge/internal/server"
	"github.com/spf13/cobra"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Start the WhatsApp bridge",
	Run:   runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) {
	printHeader("🌉 Leon WhatsApp Bridge")
	fmt.Println("Starting leonbridge...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Backend.URL == "" {
		fmt.Println("Backend URL not configured. Run 'leonbridge onboard' and edit config.json.")
		os.Exit(1)
	}

	// 2. Shared state
	state := bridge.NewSessionState()
	ledger := bridge.NewLedger()

	// 3. Event mirror (optional, nil when disabled)
	pub := mirror.NewPublisher(cfg.Mirror)
	if pub != nil {
		fmt.Println("📡 Kafka event mirror enabled:", cfg.Mirror.Topic)
	}

	// 4. Session + relay + router
	session := bridge.NewSession(cfg.WhatsApp, state, ledger)
	relayClient := relay.NewClient(cfg.Backend.URL, cfg.Backend.Token, cfg.Backend.Source, cfg.Backend.Timeout)

	router := bridge.NewRouter(state, ledger, relayClient, cfg.WhatsApp.AllowFrom, cfg.WhatsApp.ReplyTag,
		func(ctx context.Context, to, text string) error {
			ids, err := session.SendText(ctx, to, text)
			if err == nil {
				pub.Reply(to, ids)
			}
			return err
		})

	session.SetHandler(func(ctx context.Context, evt bridge.InboundMessage) {
		verdict := router.Handle(ctx, evt)
		pub.Inbound(evt.From, evt.ID, verdict.String())
	})
	session.SetLifecycleHook(pub.Lifecycle)

	// 5. Local command server, up before the session so /health answers
	// while WhatsApp is still pairing or reconnecting.
	srv := server.New(state, cfg.WhatsApp.ReplyTag, func(ctx context.Context, jid, text string) error {
		_, err := session.SendText(ctx, jid, text)
		if err == nil {
			pub.Proactive(jid)
		}
		return err
	})
	go func() {
		if err := srv.ListenAndServe(cfg.Server.Addr()); err != nil {
			fmt.Printf("Command server error: %v\n", err)
		}
	}()
	fmt.Printf("📡 Command API listening on http://%s\n", cfg.Server.Addr())

	// 6. Start the session
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := session.Start(ctx); err != nil {
		// The command server keeps answering /health even when the
		// session could not come up.
		fmt.Printf("Failed to start WhatsApp session: %v\n", err)
	}

	fmt.Println("Bridge running. Press Ctrl+C to stop.")
	<-sigChan

	fmt.Println("Shutting down...")
	session.Stop()
	pub.Close()
}
