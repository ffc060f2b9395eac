package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags with usage counts",
	Run: func(cmd *cobra.Command, args []string) {
		area, err := openArea()
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer area.Close()

		mgr := openManager(area)
		tags, err := mgr.GetTags(cmd.Context())
		if err != nil {
			fatalf("loading tags: %v", err)
		}

		keys := make([]string, 0, len(tags))
		for key := range tags {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		if len(keys) == 0 {
			fmt.Println("No tags.")
			return
		}
		for _, key := range keys {
			tag := tags[key]
			fmt.Printf("%-24s %d\n", tag.Name, tag.Count)
		}
	},
}

var tagCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		area, err := openArea()
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer area.Close()

		mgr := openManager(area)
		tag, err := mgr.CreateTag(cmd.Context(), args[0])
		if err != nil {
			fatalf("creating tag: %v", err)
		}
		fmt.Printf("Created tag %q\n", tag.Name)
	},
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a tag",
	Long: `Delete a tag from the index and strip it from every bookmark.

Deleting one of the starter tags records it in the suppression ledger so it
is never re-seeded by a repair pass.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		area, err := openArea()
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer area.Close()

		mgr := openManager(area)
		if err := mgr.DeleteTag(cmd.Context(), args[0]); err != nil {
			fatalf("deleting tag: %v", err)
		}
		fmt.Printf("Deleted tag %q\n", args[0])
	},
}

func init() {
	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagCreateCmd)
	tagCmd.AddCommand(tagDeleteCmd)
	rootCmd.AddCommand(tagCmd)
}
