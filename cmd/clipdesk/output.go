package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/heimdex/clipdesk/internal/config"
	"github.com/heimdex/clipdesk/internal/render"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusText(status render.Status, colorize bool) string {
	s := string(status)
	if !colorize {
		return s
	}
	switch status {
	case render.StatusSucceeded:
		return text.FgGreen.Sprint(s)
	case render.StatusFailed:
		return text.FgRed.Sprint(s)
	case render.StatusSubmitting, render.StatusInProgress:
		return text.FgYellow.Sprint(s)
	}
	return s
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "s"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func printBanner(w io.Writer, port int, authToken, deviceID string) {
	short := deviceID
	if len(short) > 16 {
		short = short[:16] + "..."
	}
	title := fmt.Sprintf("CLIPDESK v%s", config.Version)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║%s║\n", text.AlignCenter.Apply(title, 59))
	fmt.Fprintln(w, "╠═══════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  API URL:    http://127.0.0.1:%-27d ║\n", port)
	fmt.Fprintf(w, "║  Auth Token: %-45s ║\n", authToken)
	fmt.Fprintf(w, "║  Device ID:  %-45s ║\n", short)
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
}
