package dialectcsv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Config is the file representation of a Dialect. Character fields hold a
// single character; an empty quote or escape leaves it unset.
//
//	base: excel
//	delimiter: ";"
//	quote: "'"
//	escape: "\\"
//	line_terminator: "\r\n"
//	quoting: minimal
//	strict: true
type Config struct {
	// Base names a preset the remaining fields are applied on: excel, excel-tab or unix.
	Base             string      `yaml:"base,omitempty" json:"base,omitempty"`
	Delimiter        *string     `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`
	Quote            *string     `yaml:"quote,omitempty" json:"quote,omitempty"`
	Escape           *string     `yaml:"escape,omitempty" json:"escape,omitempty"`
	DoubleQuote      *bool       `yaml:"double_quote,omitempty" json:"double_quote,omitempty"`
	SkipInitialSpace *bool       `yaml:"skip_initial_space,omitempty" json:"skip_initial_space,omitempty"`
	LineTerminator   *string     `yaml:"line_terminator,omitempty" json:"line_terminator,omitempty"`
	Quoting          *QuoteStyle `yaml:"quoting,omitempty" json:"quoting,omitempty"`
	Strict           *bool       `yaml:"strict,omitempty" json:"strict,omitempty"`
	HasHeader        *bool       `yaml:"has_header,omitempty" json:"has_header,omitempty"`
}

// LoadDialect reads the config file at path and returns its checked Dialect.
func LoadDialect(path string) (*Dialect, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg.Dialect()
}

// LoadConfig reads a YAML (.yaml, .yml) or JSON (.json) dialect config file.
// ${VAR} references are replaced with environment values before decoding.
func LoadConfig(path string) (*Config, error) {
	format, err := configFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the caller
	if err != nil {
		return nil, fmt.Errorf("dialectcsv: read config: %w", err)
	}
	return ParseConfig(data, format)
}

// ParseConfig decodes a dialect config in the given format, "yaml" or "json".
func ParseConfig(data []byte, format string) (*Config, error) {
	content := []byte(substituteEnvVars(string(data)))
	cfg := &Config{}
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("dialectcsv: parse YAML config: %w", err)
		}
	case "json":
		if err := json.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("dialectcsv: parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedConfig, format)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML or JSON, chosen by extension.
func SaveConfig(path string, cfg *Config) error {
	format, err := configFormat(path)
	if err != nil {
		return err
	}
	var data []byte
	if format == "json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("dialectcsv: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("dialectcsv: write config: %w", err)
	}
	return nil
}

// ConfigFromDialect returns a Config that reproduces d.
func ConfigFromDialect(d *Dialect) *Config {
	quoting := d.Quoting
	return &Config{
		Delimiter:        ptr(runeString(d.Delimiter)),
		Quote:            ptr(runeString(d.Quote)),
		Escape:           ptr(runeString(d.Escape)),
		DoubleQuote:      ptr(d.DoubleQuote),
		SkipInitialSpace: ptr(d.SkipInitialSpace),
		LineTerminator:   ptr(d.LineTerminator),
		Quoting:          &quoting,
		Strict:           ptr(d.Strict),
		HasHeader:        ptr(d.HasHeader),
	}
}

// Dialect builds the Dialect described by c and checks it.
func (c *Config) Dialect() (*Dialect, error) {
	var d *Dialect
	switch strings.ToLower(c.Base) {
	case "", "excel":
		d = Excel()
	case "excel-tab", "excel_tab":
		d = ExcelTab()
	case "unix":
		d = Unix()
	default:
		return nil, fmt.Errorf("%w: unknown base dialect %q", ErrDialectInternal, c.Base)
	}

	chars := []struct {
		name string
		src  *string
		dst  *rune
	}{
		{"delimiter", c.Delimiter, &d.Delimiter},
		{"quote", c.Quote, &d.Quote},
		{"escape", c.Escape, &d.Escape},
	}
	for _, ch := range chars {
		if ch.src == nil {
			continue
		}
		r, err := singleRune(ch.name, *ch.src)
		if err != nil {
			return nil, err
		}
		*ch.dst = r
	}
	if c.Delimiter != nil && d.Delimiter == 0 {
		return nil, fmt.Errorf("%w: delimiter must be set", ErrDialectInternal)
	}

	if c.DoubleQuote != nil {
		d.DoubleQuote = *c.DoubleQuote
	}
	if c.SkipInitialSpace != nil {
		d.SkipInitialSpace = *c.SkipInitialSpace
	}
	if c.LineTerminator != nil {
		d.LineTerminator = *c.LineTerminator
	}
	if c.Quoting != nil {
		d.Quoting = *c.Quoting
	}
	if c.Strict != nil {
		d.Strict = *c.Strict
	}
	if c.HasHeader != nil {
		d.HasHeader = *c.HasHeader
	}
	if err := d.Check(); err != nil {
		return nil, err
	}
	return d, nil
}

func configFormat(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return "yaml", nil
	case ".json":
		return "json", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedConfig, ext)
	}
}

func singleRune(name, s string) (rune, error) {
	switch utf8.RuneCountInString(s) {
	case 0:
		return 0, nil
	case 1:
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a single character, got %q", ErrDialectInternal, name, s)
	}
}

func runeString(r rune) string {
	if r == 0 {
		return ""
	}
	return string(r)
}

func ptr[T any](v T) *T {
	return &v
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
// Substituted values are not scanned again.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
