package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fpang/medassist/internal/chatapi"
	"github.com/fpang/medassist/internal/cli"
	"github.com/fpang/medassist/internal/transport"
)

var messageFlag string

var consultCmd = &cobra.Command{
	Use:   "consult",
	Short: "Use the consult service: analysis and replies in one log",
}

var consultAnalyzeCmd = &cobra.Command{
	Use:   "analyze IMAGE",
	Short: "Analyse an image and get a reply in one step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path, err := cli.ValidateImageFile(args[0])
		if err != nil {
			return err
		}
		outcome, apiErr := reduce(ctx, path)
		if apiErr != nil {
			return apiErr
		}
		defer removeIfReduced(outcome)

		entry, err := call(ctx, func() transport.Result[chatapi.ChatRecord] {
			return clients.Consult.AnalyzeAndChat(ctx, outcome.Artifact.Path, messageFlag)
		})
		if err != nil {
			return err
		}
		return printConsult(cmd, entry)
	},
}

var consultSendCmd = &cobra.Command{
	Use:   "send MESSAGE...",
	Short: "Ask a follow-up question in the consult log",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		message := strings.Join(args, " ")
		entry, err := call(ctx, func() transport.Result[chatapi.ChatRecord] {
			return clients.Consult.CreateChat(ctx, message)
		})
		if err != nil {
			return err
		}
		return printConsult(cmd, entry)
	},
}

var consultListCmd = &cobra.Command{
	Use:   "list [USER_ID]",
	Short: "Show the consult log, oldest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		userID := ""
		if len(args) == 1 {
			userID = args[0]
		}
		entries, err := call(ctx, func() transport.Result[[]chatapi.ChatRecord] {
			return clients.Consult.ListChats(ctx, userID)
		})
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(entries)
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			fmt.Fprintf(out, "%s  %s\n", cli.FormatTime(e.CreatedAt), e.ID)
			if e.Message != "" {
				fmt.Fprintf(out, "  you: %s\n", e.Message)
			}
			fmt.Fprintf(out, "  assistant: %s\n", e.Reply)
		}
		return nil
	},
}

func init() {
	consultAnalyzeCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Question to ask about the image")
	consultCmd.AddCommand(consultAnalyzeCmd, consultSendCmd, consultListCmd)
}

func printConsult(cmd *cobra.Command, entry chatapi.ChatRecord) error {
	if jsonFlag {
		return printJSON(entry)
	}
	out := cmd.OutOrStdout()
	if entry.Diagnosis != nil {
		cli.PrintDiagnosis(out, *entry.Diagnosis, language())
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, entry.Reply)
	return nil
}
