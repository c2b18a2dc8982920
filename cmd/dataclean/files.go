package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dataclean/internal"
	"dataclean/internal/apperr"
)

// report prints res and turns a failure into a non-zero exit.
func report(cmd *cobra.Command, res apperr.Result, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, res.Message)
	}
	if !res.Success {
		return fmt.Errorf("command failed: %s", res.ErrorCode)
	}
	return nil
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "files:import <path>...",
		Short: "Load spreadsheet, CSV, JSON, HTML or PDF files onto the canvas",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				f, err := a.svc.Import(cmd.Context(), path)
				if err != nil {
					failed++
					res := apperr.FromError(err, apperr.FileReadError)
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", path, res.Message)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s id=%s sheets=%d rows=%d quality=%d\n", f.Name, f.ID, len(f.Sheets), f.RowCount, f.Quality)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files not imported", failed, len(args))
			}
			return nil
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "files:list",
		Short: "List the files on the canvas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := a.svc.ListFiles()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(files)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tROWS\tQUALITY\tSHEETS")
			for _, f := range files {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", f.ID, f.Name, f.Type, f.RowCount, f.Quality, strings.Join(f.Sheets, ", "))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "files:remove <fileId>",
		Short: "Remove a file and its flows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(cmd, a.svc.RemoveFile(args[0]), false)
		},
	}
}

func newFlowsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flows:list",
		Short: "List the links between source and derived files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flows, err := a.db.ListFlows()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFROM\tTO\tLABEL\tKIND")
			for _, fl := range flows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", fl.ID, fl.From, fl.To, fl.Label, fl.Kind)
			}
			return w.Flush()
		},
	}
}

func newUnlinkCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flows:remove <flowId>",
		Short: "Remove one link, keeping both files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.db.RemoveFlow(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed flow %s\n", args[0])
			return nil
		},
	}
}

func newRunCommand(a *app) *cobra.Command {
	var (
		filter string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:     "run <command>",
		Short:   "Run a plain-language command, e.g. 提取机票数据",
		Example: "  dataclean run 提取机票数据\n  dataclean run --files 2024 \"转成 CSV\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if filter == "" {
				return report(cmd, a.svc.Run(cmd.Context(), text), asJSON)
			}
			files, err := a.svc.Files(filter)
			if err != nil {
				return err
			}
			return report(cmd, a.svc.Execute(cmd.Context(), text, files), asJSON)
		},
	}
	cmd.Flags().StringVar(&filter, "files", "", "Only use files whose name contains this text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func newAnalyzeCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze [fileId]...",
		Short: "Report quality and structure for some or all files",
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []internal.File
			if len(args) == 0 {
				all, err := a.svc.Files("")
				if err != nil {
					return err
				}
				files = all
			}
			for _, id := range args {
				f, err := a.svc.File(id)
				if err != nil {
					return report(cmd, apperr.FromError(err, apperr.FileNotFound), asJSON)
				}
				files = append(files, f)
			}
			return report(cmd, a.svc.Analyze(cmd.Context(), "summary", files), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <fileId>",
		Short: "Write a file's active sheet as JSON, CSV or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(cmd, a.svc.Export(args[0], format, out), false)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json, csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (default: export directory)")
	return cmd
}

func newRunsCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent command runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := a.db.ListRuns(limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTRACE\tINTENT\tCONFIDENCE\tOK\tMS\tCOMMAND")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%v\t%.0f\t%s\n",
					r.RecordedAt, r.TraceID, r.Intent.Type, r.Intent.Confidence, r.Success, r.Timings["totalMs"], r.Command)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs")
	return cmd
}
