package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelfmark/shelfmark/internal/store"
)

var (
	editURL   string
	editTitle string
	editNote  string
	editTags  []string
)

var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Update a bookmark",
	Long: `Update fields of an existing bookmark. Only the flags you pass change;
--tags replaces the whole tag list and adjusts tag usage counts.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		area, err := openArea()
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer area.Close()

		var patch store.BookmarkPatch
		if cmd.Flags().Changed("url") {
			patch.URL = &editURL
		}
		if cmd.Flags().Changed("title") {
			patch.Title = &editTitle
		}
		if cmd.Flags().Changed("note") {
			patch.Note = &editNote
		}
		if cmd.Flags().Changed("tags") {
			patch.Tags = &editTags
		}

		mgr := openManager(area)
		b, err := mgr.UpdateBookmark(cmd.Context(), args[0], patch)
		if err != nil {
			fatalf("updating bookmark: %v", err)
		}
		fmt.Printf("Updated %s\n", b.ID)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a bookmark",
	Long:  `Delete a bookmark. The record is soft-deleted and its tag counts drop.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		area, err := openArea()
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer area.Close()

		mgr := openManager(area)
		if err := mgr.DeleteBookmark(cmd.Context(), args[0]); err != nil {
			fatalf("deleting bookmark: %v", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
	},
}

func init() {
	editCmd.Flags().StringVar(&editURL, "url", "", "new URL")
	editCmd.Flags().StringVarP(&editTitle, "title", "t", "", "new title")
	editCmd.Flags().StringVarP(&editNote, "note", "n", "", "new note")
	editCmd.Flags().StringSliceVar(&editTags, "tags", nil, "replacement tag list")
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(rmCmd)
}
