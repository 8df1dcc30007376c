package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/lastmile-cli/internal/config"
	"github.com/KaramelBytes/lastmile-cli/internal/resolve"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set lastmile configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		delim := cfg.Delimiter
		if delim == "" {
			delim = "(by extension)"
		}
		fmt.Printf("delimiter: %s\n", delim)
		fmt.Printf("decimal_separator: %s\n", cfg.DecimalSeparator)
		fmt.Printf("thousands_separator: %s\n", cfg.ThousandsSeparator)
		fmt.Printf("max_rows: %d\n", cfg.MaxRows)
		if cfg.SheetName != "" {
			fmt.Printf("sheet_name: %s\n", cfg.SheetName)
		}
		if cfg.SheetIndex > 0 {
			fmt.Printf("sheet_index: %d\n", cfg.SheetIndex)
		}
		fmt.Printf("top_n: %d\n", cfg.TopN)
		fmt.Printf("output_format: %s\n", cfg.OutputFormat)
		fmt.Printf("weight_bins: %v\n", cfg.WeightBins)
		if len(cfg.ColumnOverrides) > 0 {
			roles := make([]string, 0, len(cfg.ColumnOverrides))
			for r := range cfg.ColumnOverrides {
				roles = append(roles, r)
			}
			sort.Strings(roles)
			fmt.Println("column_overrides:")
			for _, r := range roles {
				fmt.Printf("  %s: %s\n", r, cfg.ColumnOverrides[r])
			}
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long: `Set a config value and save to disk.
Column overrides use the key column.<role>, e.g. "lastmile config set column.hub station_code".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setKey(cfg, key, val); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("Saved config")
		return nil
	},
}

func setKey(c *cfgpkg.Global, key, val string) error {
	if role, ok := strings.CutPrefix(key, "column."); ok {
		if !knownRole(role) {
			return fmt.Errorf("unknown role: %s", role)
		}
		if c.ColumnOverrides == nil {
			c.ColumnOverrides = map[string]string{}
		}
		if val == "" || val == "-" {
			delete(c.ColumnOverrides, role)
		} else {
			c.ColumnOverrides[role] = val
		}
		return nil
	}
	switch key {
	case "delimiter":
		c.Delimiter = val
	case "decimal_separator":
		c.DecimalSeparator = val
	case "thousands_separator":
		c.ThousandsSeparator = val
	case "sheet_name":
		c.SheetName = val
	case "output_format":
		c.OutputFormat = strings.ToLower(val)
	case "max_rows", "sheet_index", "top_n":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		switch key {
		case "max_rows":
			c.MaxRows = i
		case "sheet_index":
			c.SheetIndex = i
		default:
			c.TopN = i
		}
	case "weight_bins":
		var bins []float64
		for _, part := range strings.Split(val, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil || f <= 0 {
				return fmt.Errorf("invalid weight bin: %q", part)
			}
			bins = append(bins, f)
		}
		c.WeightBins = bins
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func knownRole(s string) bool {
	for _, r := range resolve.Roles() {
		if string(r) == s {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
