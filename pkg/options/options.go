// Package options resolves the runtime configuration from a config file,
// environment overrides, and CLI flags, in that order of increasing
// precedence.
package options

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// configFiles are the recognized config file names. At most one may exist.
var configFiles = []string{
	"toolproof.json",
	"toolproof.yml",
	"toolproof.yaml",
	"toolproof.toml",
}

// BrowserImpl selects the browser backend.
type BrowserImpl string

const (
	BrowserChrome     BrowserImpl = "chrome"
	BrowserPagebrowse BrowserImpl = "pagebrowse"
)

// BeforeAll is one shell command run before the suite starts.
type BeforeAll struct {
	Command string `mapstructure:"command"`
}

// Params holds every recognized option.
type Params struct {
	Root                      string            `mapstructure:"root"`
	Verbose                   bool              `mapstructure:"verbose"`
	Porcelain                 bool              `mapstructure:"porcelain"`
	Interactive               bool              `mapstructure:"interactive"`
	All                       bool              `mapstructure:"all"`
	RunName                   string            `mapstructure:"run_name"`
	RunPath                   string            `mapstructure:"run_path"`
	Browser                   BrowserImpl       `mapstructure:"browser"`
	Concurrency               int               `mapstructure:"concurrency"`
	Timeout                   int               `mapstructure:"timeout"`
	PlaceholderDelimiter      string            `mapstructure:"placeholder_delimiter"`
	Placeholders              map[string]string `mapstructure:"placeholders"`
	BeforeAll                 []BeforeAll       `mapstructure:"before_all"`
	SkipHooks                 bool              `mapstructure:"skip_hooks"`
	RetryCount                int               `mapstructure:"retry_count"`
	FailureScreenshotLocation string            `mapstructure:"failure_screenshot_location"`
	SupportedVersions         string            `mapstructure:"supported_versions"`
	Debugger                  bool              `mapstructure:"debugger"`
}

// Context is the resolved configuration handed to the rest of the
// process.
type Context struct {
	Version          string
	WorkingDirectory string
	Params           Params
}

// envBindings maps config keys to their TOOLPROOF_* environment override.
var envBindings = map[string]string{
	"root":                  "TOOLPROOF_ROOT",
	"verbose":               "TOOLPROOF_VERBOSE",
	"porcelain":             "TOOLPROOF_PORCELAIN",
	"run_name":              "TOOLPROOF_RUN_NAME",
	"browser":               "TOOLPROOF_BROWSER",
	"concurrency":           "TOOLPROOF_CONCURRENCY",
	"timeout":               "TOOLPROOF_TIMEOUT",
	"placeholder_delimiter": "TOOLPROOF_PLACEHOLDER_DELIM",
	"skip_hooks":            "TOOLPROOF_SKIPHOOKS",
}

// Configure loads the configuration for this invocation. flags carries
// the cobra flag set so explicitly set flags take precedence; cliPlaceholders
// are the parsed --placeholders pairs merged over the config map.
func Configure(version string, flags *pflag.FlagSet, cliPlaceholders map[string]string) (*Context, error) {
	workingDirectory, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	v := viper.New()
	v.SetDefault("concurrency", 10)
	v.SetDefault("timeout", 10)
	v.SetDefault("placeholder_delimiter", "%")
	v.SetDefault("browser", string(BrowserChrome))

	found, err := findConfigFile(workingDirectory)
	if err != nil {
		return nil, err
	}
	if found != "" {
		v.SetConfigFile(found)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", found, err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if flags != nil {
		changed := func(flag string) bool {
			f := flags.Lookup(flag)
			return f != nil && f.Changed
		}
		setString := func(key, flag string) {
			if changed(flag) {
				val, _ := flags.GetString(flag)
				v.Set(key, val)
			}
		}
		setInt := func(key, flag string) {
			if changed(flag) {
				val, _ := flags.GetInt(flag)
				v.Set(key, val)
			}
		}
		setBool := func(key, flag string) {
			if changed(flag) {
				val, _ := flags.GetBool(flag)
				v.Set(key, val)
			}
		}
		setString("root", "root")
		setInt("concurrency", "concurrency")
		setInt("timeout", "timeout")
		setString("placeholder_delimiter", "placeholder-delimiter")
		setBool("verbose", "verbose")
		setBool("porcelain", "porcelain")
		setBool("interactive", "interactive")
		setBool("all", "all")
		setBool("skip_hooks", "skiphooks")
		setString("run_name", "name")
		setString("run_path", "run-path")
		setString("browser", "browser")
		setInt("retry_count", "retry-count")
		setBool("debugger", "debugger")
	}

	params := Params{
		Root:                      v.GetString("root"),
		Verbose:                   v.GetBool("verbose"),
		Porcelain:                 v.GetBool("porcelain"),
		Interactive:               v.GetBool("interactive"),
		All:                       v.GetBool("all"),
		RunName:                   v.GetString("run_name"),
		RunPath:                   v.GetString("run_path"),
		Browser:                   BrowserImpl(v.GetString("browser")),
		Concurrency:               v.GetInt("concurrency"),
		Timeout:                   v.GetInt("timeout"),
		PlaceholderDelimiter:      v.GetString("placeholder_delimiter"),
		Placeholders:              v.GetStringMapString("placeholders"),
		SkipHooks:                 v.GetBool("skip_hooks"),
		RetryCount:                v.GetInt("retry_count"),
		FailureScreenshotLocation: v.GetString("failure_screenshot_location"),
		SupportedVersions:         v.GetString("supported_versions"),
		Debugger:                  v.GetBool("debugger"),
	}
	if err := v.UnmarshalKey("before_all", &params.BeforeAll); err != nil {
		return nil, fmt.Errorf("decode before_all: %w", err)
	}

	if params.Placeholders == nil {
		params.Placeholders = map[string]string{}
	}
	for k, val := range cliPlaceholders {
		params.Placeholders[k] = val
	}

	switch params.Browser {
	case BrowserChrome, BrowserPagebrowse:
	default:
		return nil, fmt.Errorf("unknown browser %q, expected chrome or pagebrowse", params.Browser)
	}

	if params.Concurrency < 1 {
		params.Concurrency = 1
	}
	if params.Timeout < 1 {
		params.Timeout = 1
	}

	if params.Root == "" {
		params.Root = workingDirectory
	} else if !filepath.IsAbs(params.Root) {
		params.Root = filepath.Join(workingDirectory, params.Root)
	}

	return &Context{
		Version:          version,
		WorkingDirectory: workingDirectory,
		Params:           params,
	}, nil
}

// findConfigFile locates the single config file in dir. Multiple present
// is fatal; none present runs with defaults.
func findConfigFile(dir string) (string, error) {
	var found []string
	for _, name := range configFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			found = append(found, name)
		}
	}
	if len(found) > 1 {
		return "", fmt.Errorf(
			"found multiple possible config files: [%s]; toolproof loads one configuration file, please keep only one",
			strings.Join(found, ", "),
		)
	}
	if len(found) == 0 {
		return "", nil
	}
	return filepath.Join(dir, found[0]), nil
}

// ParsePlaceholderPairs parses repeated key=value CLI arguments.
func ParsePlaceholderPairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected a value of key=value but received %s", pair)
		}
		out[key] = value
	}
	return out, nil
}

// IsLocalBuild reports whether version marks a development binary that
// skips the supported_versions gate.
func (c *Context) IsLocalBuild() bool {
	return c.Version == "0.0.0" || c.Version == "dev" || c.Version == ""
}
