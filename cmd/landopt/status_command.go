package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"landopt/internal/ledger"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-region ledger state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			var rows []ledger.Row
			if failedOnly {
				rows, err = store.Failed(cmd.Context())
			} else {
				rows, err = store.List(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No regions recorded yet; run `landopt run` first.")
				return nil
			}

			printRegionTable(out, rows)

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStatusSummary(out, stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Show only failed regions")
	return cmd
}

func printRegionTable(out io.Writer, rows []ledger.Row) {
	colorize := shouldColorize(out)
	tableRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		status := string(row.Status)
		if colorize {
			status = colorStatus(row.Status)
		}
		message := trimMultiline(row.ErrorMessage)
		if len(message) > 60 {
			message = message[:57] + "..."
		}
		tableRows = append(tableRows, []string{
			row.Source,
			row.Label,
			status,
			row.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
			message,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]tableColumn{
			{header: "Source"},
			{header: "Region"},
			{header: "Status"},
			{header: "Updated"},
			{header: "Error"},
		},
		tableRows,
	))
}

func printStatusSummary(out io.Writer, stats map[ledger.Status]int) {
	order := []ledger.Status{
		ledger.StatusPending,
		ledger.StatusAligning,
		ledger.StatusOptimizing,
		ledger.StatusCompleted,
		ledger.StatusFailed,
		ledger.StatusSkipped,
	}
	rows := make([][]string, 0, len(order))
	for _, status := range order {
		if stats[status] == 0 {
			continue
		}
		rows = append(rows, []string{string(status), strconv.Itoa(stats[status])})
	}
	fmt.Fprintln(out, renderTable(
		[]tableColumn{{header: "Status"}, {header: "Regions", right: true}},
		rows,
	))
}

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
)

func colorStatus(status ledger.Status) string {
	text := string(status)
	switch status {
	case ledger.StatusCompleted:
		return ansiGreen + text + ansiReset
	case ledger.StatusFailed:
		return ansiRed + text + ansiReset
	case ledger.StatusSkipped:
		return text
	default:
		return ansiYellow + text + ansiReset
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func trimMultiline(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
