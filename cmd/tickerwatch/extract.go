package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"tickerwatch/pkg/config"
	"tickerwatch/pkg/markup"
	"tickerwatch/pkg/ticker"
)

var (
	extractPattern  string
	extractHTML     bool
	extractSelector string
	extractFormat   string
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract [file...]",
	Short: "Count symbol mentions in local files or stdin",
	Long: `Run the symbol extractor over text without opening a browser.

With --html the input is treated as a saved page: only the text inside
elements matching --selector is scanned, the way feeds are harvested.`,
	Example: `  echo '$AAPL up, $AAPL again, $TSLA' | tickerwatch extract
  tickerwatch extract --html --selector article saved-feed.html`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVar(&extractPattern, "pattern", ticker.DefaultPattern, "symbol pattern (regular expression)")
	extractCmd.Flags().BoolVar(&extractHTML, "html", false, "treat input as HTML markup")
	extractCmd.Flags().StringVar(&extractSelector, "selector", "article", "CSS selector of the post blocks when --html is set")
	extractCmd.Flags().StringVarP(&extractFormat, "format", "f", config.ReportFormatTable, "output format: log or table")
}

func runExtract(cmd *cobra.Command, args []string) error {
	extractor, err := ticker.NewExtractor(extractPattern)
	if err != nil {
		return err
	}

	total := make(ticker.Counts)
	if len(args) == 0 {
		counts, err := extractFrom(cmd.InOrStdin(), extractor, extractHTML, extractSelector)
		if err != nil {
			return err
		}
		total.Merge(counts)
	}
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		counts, err := extractFrom(f, extractor, extractHTML, extractSelector)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		total.Merge(counts)
	}

	return printCounts(cmd.OutOrStdout(), total, extractFormat)
}

func extractFrom(r io.Reader, extractor *ticker.Extractor, isHTML bool, selector string) (ticker.Counts, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if !isHTML {
		return extractor.Extract(string(data)), nil
	}

	doc, err := markup.Parse(string(data))
	if err != nil {
		return nil, err
	}
	counts := make(ticker.Counts)
	for _, block := range doc.Blocks(selector) {
		counts.Merge(extractor.Extract(block))
	}
	return counts, nil
}

func printCounts(out io.Writer, counts ticker.Counts, format string) error {
	entries := counts.Sorted()

	switch format {
	case config.ReportFormatLog:
		for _, e := range entries {
			fmt.Fprintf(out, "%s %d\n", e.Symbol, e.Count)
		}
		return nil
	case config.ReportFormatTable:
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.AppendHeader(table.Row{"Symbol", "Mentions"})
		for _, e := range entries {
			t.AppendRow(table.Row{e.Symbol, e.Count})
		}
		t.AppendFooter(table.Row{"Total", strconv.Itoa(counts.Total())})
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
