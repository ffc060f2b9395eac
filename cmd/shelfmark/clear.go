package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase all data",
	Long: `Erase every bookmark, tag, and setting and start over.

This also drops the suppression ledger, so starter tags you previously
deleted will reappear on the next initialization.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !clearYes {
			fatalf("refusing to erase all data without --yes")
		}

		area, err := openArea()
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer area.Close()

		mgr := openManager(area)
		if err := mgr.ClearAllData(cmd.Context()); err != nil {
			fatalf("clearing data: %v", err)
		}
		fmt.Println("All data cleared.")
	},
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm erasing all data")
	rootCmd.AddCommand(clearCmd)
}
