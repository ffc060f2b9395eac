package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shelfmark/shelfmark/internal/model"
)

var listTags []string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarks",
	Run: func(cmd *cobra.Command, args []string) {
		runSearch(cmd, "")
	},
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search bookmarks by title, URL, or note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSearch(cmd, args[0])
	},
}

func runSearch(cmd *cobra.Command, query string) {
	area, err := openArea()
	if err != nil {
		fatalf("opening store: %v", err)
	}
	defer area.Close()

	mgr := openManager(area)
	bookmarks, err := mgr.SearchBookmarks(cmd.Context(), query, listTags)
	if err != nil {
		fatalf("searching bookmarks: %v", err)
	}

	if len(bookmarks) == 0 {
		fmt.Println("No bookmarks found.")
		return
	}
	for _, b := range bookmarks {
		printBookmark(b)
	}
	fmt.Printf("\n%d bookmark(s)\n", len(bookmarks))
}

func printBookmark(b *model.Bookmark) {
	title := b.Title
	if title == "" {
		title = b.URL
	}
	fmt.Printf("%s  %s\n", b.ID, title)
	fmt.Printf("    %s\n", b.URL)
	if b.Note != "" {
		fmt.Printf("    %s\n", b.Note)
	}
	if len(b.Tags) > 0 {
		fmt.Printf("    [%s]\n", strings.Join(b.Tags, ", "))
	}
	fmt.Printf("    added %s\n", formatTime(b.CreatedAt))
}

func init() {
	listCmd.Flags().StringSliceVar(&listTags, "tag", nil, "require these tags (repeatable)")
	searchCmd.Flags().StringSliceVar(&listTags, "tag", nil, "require these tags (repeatable)")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
}
