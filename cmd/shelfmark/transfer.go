package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/shelfmark/shelfmark/internal/transfer"
)

var (
	importFormat string
	importYes    bool
	exportFormat string
	exportOut    string
)

var decisionStyle = lipgloss.NewStyle().Faint(true)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import bookmarks from a JSON or CSV file",
	Long: `Import bookmarks from a JSON or CSV file.

Legacy field names are mapped, records missing a title or URL scheme are
repaired, and incoming tags are classified against the existing tag set:
byte-identical tags merge silently, case-variant and near-match tags prompt
for merge-or-keep (pass --yes to accept the default merges), and the rest
are created as new tags.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]
		file, err := os.Open(path)
		if err != nil {
			fatalf("opening import file: %v", err)
		}
		defer file.Close()

		format := importFormat
		if format == "" {
			switch strings.ToLower(filepath.Ext(path)) {
			case ".csv":
				format = "csv"
			default:
				format = "json"
			}
		}

		var records []transfer.Record
		switch format {
		case "json":
			records, err = transfer.ParseJSON(file)
		case "csv":
			records, err = transfer.ParseCSV(file)
		default:
			fatalf("unknown import format %q (want json or csv)", format)
		}
		if err != nil {
			fatalf("parsing import file: %v", err)
		}

		area, err := openArea()
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer area.Close()

		var resolver transfer.Resolver
		if !importYes {
			resolver = promptConflict
		}

		mgr := openManager(area)
		report, err := transfer.Import(cmd.Context(), mgr, records, resolver)
		if err != nil {
			fatalf("importing: %v", err)
		}

		fmt.Printf("Imported %d, failed %d, skipped %d\n",
			report.Succeeded, report.Failed, report.Skipped)
		for _, decision := range report.Conflicts {
			if decision.Kind == transfer.KindNew || decision.Kind == transfer.KindExact {
				continue
			}
			line := fmt.Sprintf("  tag %q kept as new (%s)", decision.Incoming, decision.Kind)
			if decision.Action == transfer.ActionMerge {
				line = fmt.Sprintf("  tag %q -> %q (%s)", decision.Incoming, decision.MatchedTo, decision.Kind)
			}
			fmt.Println(decisionStyle.Render(line))
		}
		for _, msg := range report.Errors {
			fmt.Fprintf(os.Stderr, "  failed: %s\n", msg)
		}
	},
}

// promptConflict asks the user to confirm or override one tag conflict
// decision. An aborted prompt falls back to the default merge.
func promptConflict(d transfer.Decision) transfer.Decision {
	title := fmt.Sprintf("Imported tag %q is a case variant of %q", d.Incoming, d.MatchedTo)
	if d.Kind == transfer.KindSimilar {
		title = fmt.Sprintf("Imported tag %q looks like %q (%.0f%% similar)",
			d.Incoming, d.MatchedTo, d.Similarity*100)
	}

	action := d.Action
	err := huh.NewSelect[transfer.Action]().
		Title(title).
		Options(
			huh.NewOption(fmt.Sprintf("Merge into %q", d.MatchedTo), transfer.ActionMerge),
			huh.NewOption(fmt.Sprintf("Keep %q as a new tag", d.Incoming), transfer.ActionKeep),
		).
		Value(&action).
		Run()
	if err != nil {
		if err == huh.ErrUserAborted {
			return d
		}
		fatalf("reading conflict choice: %v", err)
	}
	d.Action = action
	return d
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export bookmarks as JSON, CSV, Markdown, or YAML",
	Run: func(cmd *cobra.Command, args []string) {
		area, err := openArea()
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer area.Close()

		mgr := openManager(area)
		doc, err := mgr.GetDocument(cmd.Context())
		if err != nil {
			fatalf("loading document: %v", err)
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				fatalf("creating output file: %v", err)
			}
			defer f.Close()
			out = f
		}

		now := time.Now()
		switch exportFormat {
		case "json":
			err = transfer.WriteJSON(out, doc, now)
		case "csv":
			err = transfer.WriteCSV(out, doc)
		case "markdown", "md":
			err = transfer.WriteMarkdown(out, doc)
		case "yaml", "yml":
			err = transfer.WriteYAML(out, doc, now)
		default:
			fatalf("unknown export format %q (want json, csv, markdown, or yaml)", exportFormat)
		}
		if err != nil {
			fatalf("exporting: %v", err)
		}
	},
}

func init() {
	importCmd.Flags().StringVar(&importFormat, "format", "", "import format: json or csv (default: by extension)")
	importCmd.Flags().BoolVarP(&importYes, "yes", "y", false, "apply default merge decisions without prompting")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format: json, csv, markdown, or yaml")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default: stdout)")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
}
