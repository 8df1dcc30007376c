package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/lastmile-cli/internal/aggregate"
)

// Global configuration structure.
type Global struct {
	// Input parsing
	Delimiter          string `mapstructure:"delimiter" yaml:"delimiter"`
	DecimalSeparator   string `mapstructure:"decimal_separator" yaml:"decimal_separator"`
	ThousandsSeparator string `mapstructure:"thousands_separator" yaml:"thousands_separator"`
	MaxRows            int    `mapstructure:"max_rows" yaml:"max_rows"`
	SheetName          string `mapstructure:"sheet_name" yaml:"sheet_name"`
	SheetIndex         int    `mapstructure:"sheet_index" yaml:"sheet_index"`

	// Output
	TopN         int    `mapstructure:"top_n" yaml:"top_n"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`

	// Role name -> exact column name, tried before the built-in patterns.
	ColumnOverrides map[string]string `mapstructure:"column_overrides" yaml:"column_overrides"`
	// Ascending upper edges of the weight categories, in kg.
	WeightBins      []float64         `mapstructure:"weight_bins" yaml:"weight_bins"`
}

// DelimiterRune maps the configured delimiter to a rune; 0 means pick by extension.
func (c *Global) DelimiterRune() (rune, error) {
	switch strings.ToLower(c.Delimiter) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	r := []rune(c.Delimiter)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character or \"tab\", got %q", c.Delimiter)
	}
	return r[0], nil
}

// ParseSeparator maps a separator setting to a rune. It accepts the characters
// themselves or the words comma, dot, period and space; "auto" returns 0.
func ParseSeparator(s string) (rune, error) {
	if s != "" && strings.TrimSpace(s) == "" {
		return ' ', nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ",", "comma":
		return ',', nil
	case ".", "dot", "period":
		return '.', nil
	case "space":
		return ' ', nil
	case "auto":
		return 0, nil
	}
	return 0, fmt.Errorf("unsupported separator %q (use '.'|','|'space'|'auto')", s)
}

func sepRune(s string, def rune) (rune, error) {
	if s == "" {
		return def, nil
	}
	return ParseSeparator(s)
}

// Separators returns the decimal and thousands separators. Unparseable
// settings fall back to '.' and ','; Validate reports them.
func (c *Global) Separators() (decimal, thousands rune) {
	d, err := sepRune(c.DecimalSeparator, '.')
	if err != nil {
		d = '.'
	}
	t, err := sepRune(c.ThousandsSeparator, ',')
	if err != nil {
		t = ','
	}
	return d, t
}

// AdjustThousands switches the thousands separator away from the decimal
// separator when both would be the same character.
func (c *Global) AdjustThousands() {
	d, t := c.Separators()
	if d == 0 || d != t {
		return
	}
	if d == ',' {
		c.ThousandsSeparator = "."
	} else {
		c.ThousandsSeparator = ","
	}
}

// Validate checks values that cannot be caught by unmarshalling.
func (c *Global) Validate() error {
	if _, err := c.DelimiterRune(); err != nil {
		return err
	}
	d, err := sepRune(c.DecimalSeparator, '.')
	if err != nil {
		return fmt.Errorf("decimal_separator: %w", err)
	}
	t, err := sepRune(c.ThousandsSeparator, ',')
	if err != nil {
		return fmt.Errorf("thousands_separator: %w", err)
	}
	if d != 0 && d == t {
		return fmt.Errorf("decimal and thousands separators must differ (both %q)", d)
	}
	switch c.OutputFormat {
	case "", "markdown", "json":
	default:
		return fmt.Errorf("output_format must be markdown or json, got %q", c.OutputFormat)
	}
	for i := 1; i < len(c.WeightBins); i++ {
		if c.WeightBins[i] <= c.WeightBins[i-1] {
			return fmt.Errorf("weight_bins must be ascending: %v", c.WeightBins)
		}
	}
	return nil
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".lastmile"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.lastmile/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("LASTMILE")
	v.AutomaticEnv()

	v.SetDefault("delimiter", "")
	v.SetDefault("decimal_separator", ".")
	v.SetDefault("thousands_separator", ",")
	v.SetDefault("max_rows", 0)
	v.SetDefault("sheet_name", "")
	v.SetDefault("sheet_index", 0)
	v.SetDefault("top_n", 15)
	v.SetDefault("output_format", "markdown")
	v.SetDefault("column_overrides", map[string]string{})
	v.SetDefault("weight_bins", aggregate.DefaultWeightEdges)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			if _, statErr := os.Stat(cfgFile); statErr == nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}
