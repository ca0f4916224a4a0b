package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fpang/medassist/internal/cli"
	"github.com/fpang/medassist/internal/medapi"
	"github.com/fpang/medassist/internal/transport"
)

var (
	sessionIDFlag string
	recordIDFlag  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the medical assistant",
}

var chatSendCmd = &cobra.Command{
	Use:   "send MESSAGE...",
	Short: "Send a message, starting a conversation unless --session is given",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		req := medapi.ChatRequest{
			Message:   strings.Join(args, " "),
			SessionID: sessionIDFlag,
			RecordID:  recordIDFlag,
		}
		resp, err := call(ctx, func() transport.Result[medapi.ChatResponse] { return clients.Med.Chat(ctx, req) })
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(resp)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, resp.Reply)
		if sessionIDFlag == "" {
			fmt.Fprintf(out, "\n(continue with --session %s)\n", resp.SessionID)
		}
		return nil
	},
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show your conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		sessions, err := call(ctx, func() transport.Result[[]medapi.ChatSession] {
			return clients.Med.History(ctx, sessionIDFlag)
		})
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversations.")
			return nil
		}
		for _, s := range sessions {
			cli.PrintConversation(cmd.OutOrStdout(), s)
		}
		return nil
	},
}

var chatDeleteCmd = &cobra.Command{
	Use:   "delete SESSION",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		del, err := call(ctx, func() transport.Result[medapi.Deleted] { return clients.Med.DeleteHistory(ctx, args[0]) })
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(del)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation %s.\n", args[0])
		return nil
	},
}

func init() {
	chatSendCmd.Flags().StringVarP(&sessionIDFlag, "session", "s", "", "Conversation to continue")
	chatSendCmd.Flags().StringVarP(&recordIDFlag, "record", "r", "", "Saved analysis to discuss")
	chatHistoryCmd.Flags().StringVarP(&sessionIDFlag, "session", "s", "", "Show only this conversation")
	chatCmd.AddCommand(chatSendCmd, chatHistoryCmd, chatDeleteCmd)
}
