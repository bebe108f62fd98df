package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/catchment/internal/poi"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List POI categories and classification rules",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatCategories(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

// formatCategories writes the category palette and the ordered rule list.
func formatCategories(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tCOLOR\tRADIUS")
	_, _ = fmt.Fprintln(w, "--------\t-----\t------")
	for _, c := range categoryTable() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", c.Name, c.Color, c.Radius)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tRULE\tCATEGORY")
	_, _ = fmt.Fprintln(w, "-\t----\t--------")
	for i, r := range poi.Rules {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, r.Name, r.Category)
	}
	_ = w.Flush()
}
