package cmd

import (
	"fmt"

	"github.com/civicledger/participation/business/core/budget"
	"github.com/spf13/cobra"
)

// categoriesCmd represents the categories command
var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Print the fixed set of budget categories.",
	Run: func(cmd *cobra.Command, args []string) {
		for _, item := range budget.Items() {
			fmt.Printf("%-16s %s\n", item.Category, item.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}
