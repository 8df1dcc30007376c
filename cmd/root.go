package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/lastmile-cli/internal/clean"
	cfgpkg "github.com/KaramelBytes/lastmile-cli/internal/config"
	"github.com/KaramelBytes/lastmile-cli/internal/table"
)

var (
	// Global flags
	cfgFile string
	debug   bool

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "lastmile",
	Short: "lastmile: delivery, cost and earnings analytics over exported tables",
	Long: `lastmile reads delivery, pickup, driver-cost and trip exports (CSV, TSV or XLSX),
resolves their columns, joins costs onto hubs and customers, and prints a dashboard-style report.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.lastmile/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c
}

// effectiveConfig returns a copy of the loaded config, or defaults when none loaded.
func effectiveConfig() (*cfgpkg.Global, error) {
	if cfg == nil {
		c, err := cfgpkg.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	c := *cfg
	return &c, nil
}

func loadOptions(c *cfgpkg.Global) (table.LoadOptions, error) {
	delim, err := c.DelimiterRune()
	if err != nil {
		return table.LoadOptions{}, err
	}
	return table.LoadOptions{Delimiter: delim, MaxRows: c.MaxRows, SheetName: c.SheetName, SheetIndex: c.SheetIndex}, nil
}

func cleanOptions(c *cfgpkg.Global) clean.Options {
	opt := clean.DefaultOptions()
	opt.DecimalSeparator, opt.ThousandsSeparator = c.Separators()
	return opt
}

func debugf(format string, args ...any) {
	if debug {
		fmt.Fprintf(os.Stderr, "debug: "+format+"\n", args...)
	}
}
