package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fpang/medassist/internal/cli"
	"github.com/fpang/medassist/internal/medapi"
	"github.com/fpang/medassist/internal/transport"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage saved analyses",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved analyses, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		records, err := call(ctx, func() transport.Result[[]medapi.Record] { return clients.Med.Records(ctx) })
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(records)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved analyses.")
			return nil
		}
		for _, r := range records {
			cli.PrintRecordLine(cmd.OutOrStdout(), r)
		}
		return nil
	},
}

var recordsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one saved analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rec, err := call(ctx, func() transport.Result[medapi.Record] { return clients.Med.Record(ctx, args[0]) })
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(rec)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Record %s (%s, %s)\n", rec.ID, rec.FileName, cli.FormatTime(rec.CreatedAt))
		cli.PrintDiagnosis(out, rec.Diagnosis, language())
		if rec.ImageURL != "" {
			fmt.Fprintf(out, "Image:       %s\n", rec.ImageURL)
		}
		return nil
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a saved analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		del, err := call(ctx, func() transport.Result[medapi.Deleted] { return clients.Med.DeleteRecord(ctx, args[0]) })
		if err != nil {
			return err
		}
		if jsonFlag {
			return printJSON(del)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted record %s.\n", args[0])
		return nil
	},
}

func init() {
	recordsCmd.AddCommand(recordsListCmd, recordsGetCmd, recordsDeleteCmd)
}
