package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/report"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/seed"
)

var Version = "dev"

func main() {
	var dbPath string

	rootCmd := &cobra.Command{
		Use:           "reconctl",
		Short:         "reconctl - card settlement reconciliation from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides DB_PATH)")

	rootCmd.AddCommand(seedCmd(&dbPath))
	rootCmd.AddCommand(ingestCmd(&dbPath))
	rootCmd.AddCommand(validateCmd(&dbPath))
	rootCmd.AddCommand(processCmd(&dbPath))
	rootCmd.AddCommand(revertCmd(&dbPath))
	rootCmd.AddCommand(exportCmd(&dbPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func seedCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file]",
		Short: "Load bank accounts, acquirers and ledger installments from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*dbPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ds, err := seed.Load(args[0])
			if err != nil {
				return err
			}
			sum, err := seed.Apply(cmd.Context(), a.accounts, a.installments, ds)
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		},
	}
}

func ingestCmd(dbPath *string) *cobra.Command {
	var templateID string
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest an acquirer statement with a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*dbPath)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := a.ingestion.Ingest(cmd.Context(), data, templateID, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVarP(&templateID, "template", "t", "", "Template id")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func validateCmd(dbPath *string) *cobra.Command {
	var acquirerID, from, to string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Match and score an acquirer's settlements over a date window",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := time.Parse("2006-01-02", from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			t, err := time.Parse("2006-01-02", to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			a, err := openApp(*dbPath)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.recon.Validate(cmd.Context(), acquirerID, domain.NewWindow(f, t))
			if err != nil {
				return err
			}
			return printJSON(cmd, out.Record)
		},
	}
	cmd.Flags().StringVarP(&acquirerID, "acquirer", "a", "", "Acquirer id")
	cmd.Flags().StringVar(&from, "from", "", "Window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Window end (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("acquirer")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func processCmd(dbPath *string) *cobra.Command {
	var d domain.Decision
	cmd := &cobra.Command{
		Use:   "process [validation-id]",
		Short: "Apply a validation: mark installments received and credit the bank account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*dbPath)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.processing.Process(cmd.Context(), args[0], d)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().BoolVar(&d.Confirmed, "confirm", false, "Confirm a MEDIUM confidence validation")
	cmd.Flags().StringVar(&d.Justification, "justification", "", "Justification for a LOW confidence validation")
	return cmd
}

func revertCmd(dbPath *string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revert [validation-id]",
		Short: "Undo a processed validation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*dbPath)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.processing.Revert(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Reversal reason")
	return cmd
}

func exportCmd(dbPath *string) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export [validation-id]",
		Short: "Write a validation report as xlsx or pdf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			build := report.BuildValidationXLSX
			switch format {
			case "xlsx":
			case "pdf":
				build = report.BuildValidationPDF
			default:
				return fmt.Errorf("unsupported format %q (xlsx or pdf)", format)
			}

			a, err := openApp(*dbPath)
			if err != nil {
				return err
			}
			defer a.Close()

			detail, err := a.recon.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := build(detail.Record, detail.Matched)
			if err != nil {
				return err
			}
			if out == "" {
				out = "validation-" + detail.Record.ID + "." + format
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "xlsx", "Output format (xlsx, pdf)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file")
	return cmd
}
