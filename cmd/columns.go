package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/lastmile-cli/internal/resolve"
	"github.com/KaramelBytes/lastmile-cli/internal/table"
)

var (
	colSheetName  string
	colSheetIndex int
	colAll        bool
)

var columnsCmd = &cobra.Command{
	Use:   "columns <file>",
	Short: "Show which column each role resolves to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := effectiveConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("sheet-name") {
			c.SheetName = colSheetName
		}
		if cmd.Flags().Changed("sheet-index") {
			c.SheetIndex = colSheetIndex
		}
		lopt, err := loadOptions(c)
		if err != nil {
			return err
		}
		lopt.MaxRows = 1
		t, _, err := table.NewLoader(lopt, nil).LoadFile(args[0])
		if err != nil {
			return err
		}
		debugf("%s id=%s columns=%v", t.Name, t.ID, t.Columns())

		r := resolve.New(c.ColumnOverrides)
		fmt.Printf("%s (%d columns)\n", t.Name, len(t.Columns()))
		for _, role := range resolve.Roles() {
			col, ok := r.Resolve(t, role)
			switch {
			case ok:
				fmt.Printf("  %-14s %s\n", role, col)
			case colAll:
				fmt.Printf("  %-14s (unresolved)\n", role)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(columnsCmd)
	columnsCmd.Flags().BoolVar(&colAll, "all", false, "also list roles that did not resolve")
	columnsCmd.Flags().StringVar(&colSheetName, "sheet-name", "", "XLSX: sheet name to read")
	columnsCmd.Flags().IntVar(&colSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}
