// widgetchat talks to the roofing chat API from a terminal, with the same
// pacing and fallbacks as the web widget.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	apiURL      string
	chatPath    string
	apiTimeout  string
	typingDelay string
	replyDelay  string
)

var rootCmd = &cobra.Command{
	Use:   "widgetchat",
	Short: "Chat with the roofing assistant from a terminal",
	Long: `widgetchat drives a widget conversation against the remote chat API.

Available subcommands:
  chat      - Interactive conversation (default)
  histories - List stored conversations
  history   - Print one stored conversation`,
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	_ = godotenv.Load()

	defaultURL := os.Getenv("CHAT_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:3001"
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "chat API base URL")
	rootCmd.PersistentFlags().StringVar(&chatPath, "chat-path", "/chat", "path of the chat endpoint")
	rootCmd.PersistentFlags().StringVar(&apiTimeout, "timeout", "10s", "per-request timeout")
	chatCmd.Flags().StringVar(&typingDelay, "typing-delay", "400ms", "pause before the typing indicator")
	chatCmd.Flags().StringVar(&replyDelay, "reply-delay", "2s", "how long the typing indicator shows")
	rootCmd.Flags().AddFlagSet(chatCmd.Flags())

	rootCmd.AddCommand(chatCmd, historiesCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
