package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelfmark/shelfmark/internal/store"
)

var (
	addTitle string
	addNote  string
	addTags  []string
)

var addCmd = &cobra.Command{
	Use:   "add URL",
	Short: "Save a bookmark",
	Long: `Save a bookmark with an optional title, note, and tags.

Tags that don't exist yet are created with their usage count starting at
the new bookmark.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		area, err := openArea()
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer area.Close()

		mgr := openManager(area)
		b, err := mgr.AddBookmark(cmd.Context(), store.BookmarkDraft{
			URL:   args[0],
			Title: addTitle,
			Note:  addNote,
			Tags:  addTags,
		})
		if err != nil {
			fatalf("adding bookmark: %v", err)
		}

		fmt.Printf("Added %s (%s)\n", b.ID, b.URL)
	},
}

func init() {
	addCmd.Flags().StringVarP(&addTitle, "title", "t", "", "bookmark title")
	addCmd.Flags().StringVarP(&addNote, "note", "n", "", "free-form note")
	addCmd.Flags().StringSliceVar(&addTags, "tags", nil, "comma-separated tags")
	rootCmd.AddCommand(addCmd)
}
