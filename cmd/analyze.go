package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/lastmile-cli/internal/analysis"
	"github.com/KaramelBytes/lastmile-cli/internal/clean"
	"github.com/KaramelBytes/lastmile-cli/internal/resolve"
	"github.com/KaramelBytes/lastmile-cli/internal/session"
	"github.com/KaramelBytes/lastmile-cli/internal/table"
	"github.com/KaramelBytes/lastmile-cli/internal/utils"
)

var (
	anaDeliveries string
	anaPickups    string
	anaCosts      string
	anaTrips      string
	anaHub        string
	anaCustomer   string
	anaMonth      string
	anaVehicles   []string
	anaTop        int
	anaJSON       bool
	anaOutputPath string
	anaDelimiter  string
	anaDecimal    string
	anaThousands  string
	anaMaxRows    int
	anaSheetName  string
	anaSheetIndex int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run every dashboard section over the given exports",
	Long: `Run the hub, customer, weight, hour, pickup, cost and earnings sections.
Sections whose columns cannot be found are listed as skipped; the rest still render.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := effectiveConfig()
		if err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("delimiter") {
			c.Delimiter = anaDelimiter
		}
		if f.Changed("decimal") {
			c.DecimalSeparator = anaDecimal
		}
		if f.Changed("thousands") {
			c.ThousandsSeparator = anaThousands
		} else if f.Changed("decimal") {
			c.AdjustThousands()
		}
		if f.Changed("max-rows") {
			c.MaxRows = anaMaxRows
		}
		if f.Changed("sheet-name") {
			c.SheetName = anaSheetName
		}
		if f.Changed("sheet-index") {
			c.SheetIndex = anaSheetIndex
		}
		if f.Changed("top") {
			c.TopN = anaTop
		}
		if anaJSON {
			c.OutputFormat = "json"
		}
		if err := c.Validate(); err != nil {
			return err
		}

		lopt, err := loadOptions(c)
		if err != nil {
			return err
		}
		s := session.New(table.NewLoader(lopt, table.NewMemoryCache()))
		inputs := []struct{ kind, path string }{
			{analysis.Deliveries, anaDeliveries},
			{analysis.Pickups, anaPickups},
			{analysis.Costs, anaCosts},
			{analysis.Trips, anaTrips},
		}
		loaded := 0
		for _, in := range inputs {
			if in.path == "" {
				continue
			}
			src, err := s.Add(in.kind, in.path)
			if err != nil {
				return err
			}
			loaded++
			debugf("%s: %s id=%s rows=%d cached=%v", in.kind, src.Name, src.Table.ID, src.Table.Len(), src.Cached)
		}
		if loaded == 0 {
			return errors.New("at least one of --deliveries, --pickups, --costs or --trips is required")
		}

		opt := analysis.DefaultOptions()
		opt.TopN = c.TopN
		if len(c.WeightBins) > 0 {
			opt.WeightEdges = c.WeightBins
		}
		opt.Filters = analysis.Filters{Hub: anaHub, Customer: anaCustomer, Month: anaMonth, Vehicles: anaVehicles}
		a := analysis.New(resolve.New(c.ColumnOverrides), clean.New(cleanOptions(c)), opt)
		rep, err := s.Run(a)
		if err != nil {
			return err
		}
		for _, in := range rep.Inputs {
			debugf("%s columns: %v", in.Kind, in.Binding)
		}
		for _, w := range rep.Warnings {
			fmt.Fprintf(os.Stderr, "⚠ Warning: %s\n", w)
		}
		for _, sec := range rep.Sections {
			if !sec.Ran() {
				debugf("skipped %s: %s", sec.ID, sec.Skipped)
			}
		}

		var out []byte
		if c.OutputFormat == "json" {
			if out, err = utils.PrettyJSON(rep); err != nil {
				return err
			}
		} else {
			out = []byte(rep.Markdown())
		}
		if anaOutputPath != "" {
			if err := utils.SafeWriteFile(anaOutputPath, out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote report to %s\n", anaOutputPath)
			return nil
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	f := analyzeCmd.Flags()
	f.StringVar(&anaDeliveries, "deliveries", "", "last-mile deliveries export (CSV/TSV/XLSX)")
	f.StringVar(&anaPickups, "pickups", "", "first-mile pickups export")
	f.StringVar(&anaCosts, "costs", "", "driver cost report")
	f.StringVar(&anaTrips, "trips", "", "trip earnings (buy rate) export")
	f.StringVar(&anaHub, "hub", "", "only deliveries from this hub")
	f.StringVar(&anaCustomer, "customer", "", "only deliveries for this customer")
	f.StringVar(&anaMonth, "month", "", "only trips in this month, e.g. Mar-2025")
	f.StringSliceVar(&anaVehicles, "vehicle", nil, "only trips with these vehicle models (repeatable)")
	f.IntVar(&anaTop, "top", 15, "rows per section (0 = all)")
	f.BoolVar(&anaJSON, "json", false, "emit JSON instead of Markdown")
	f.StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the report")
	f.StringVar(&anaDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (default by extension)")
	f.StringVar(&anaDecimal, "decimal", "", "decimal separator for numbers: '.' | ',' | comma | dot | auto")
	f.StringVar(&anaThousands, "thousands", "", "thousands separator for numbers: ',' | '.' | space")
	f.IntVar(&anaMaxRows, "max-rows", 0, "maximum rows to read per file (0 = unlimited)")
	f.StringVar(&anaSheetName, "sheet-name", "", "XLSX: sheet name to read")
	f.IntVar(&anaSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}
