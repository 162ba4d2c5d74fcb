package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashureev/roofchat/internal/domain"
)

var historiesCmd = &cobra.Command{
	Use:   "histories",
	Short: "List stored conversations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		histories, err := client.Histories(cmd.Context())
		if err != nil {
			return fmt.Errorf("list histories: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tMESSAGES\tUPDATED\tCHAT ID")
		for i := range histories {
			h := &histories[i]
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				h.ShortID(), h.DisplayUser(), h.MessageCount(), h.UpdatedAt.Format("2006-01-02 15:04"), h.ChatID)
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <chat-id>",
	Short: "Print one stored conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		msgs, err := client.History(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get history: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, m := range msgs {
			label := boldCyan("Esther:")
			if m.Sender == domain.SenderUser {
				label = boldGreen("Visitor:")
			}
			fmt.Fprintf(out, "%s %s\n", label, render(m.Text))
		}
		return nil
	},
}
