package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/toolproof/pkg/options"
	"github.com/ormasoftchile/toolproof/pkg/schema"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Load a .env file if present so local secrets stay out of configs.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSomeTestsFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

var placeholderPairs []string

var rootCmd = &cobra.Command{
	Use:   "toolproof",
	Short: "Run end-to-end tests from human-readable step files",
	Long: "toolproof — an acceptance test runner that executes natural-language " +
		"steps against a per-test sandbox, with snapshots, macros, and browser automation.",
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		placeholders, err := options.ParsePlaceholderPairs(placeholderPairs)
		if err != nil {
			return fmt.Errorf("error parsing --placeholders: %w", err)
		}

		ctx, err := options.Configure(version, cmd.Flags(), placeholders)
		if err != nil {
			return err
		}

		return runSuite(cmd.Context(), ctx)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringP("root", "r", "", "The location from which to look for toolproof test files")
	flags.IntP("concurrency", "c", 10, "How many tests should be run concurrently")
	flags.StringArrayVar(&placeholderPairs, "placeholders", nil, "Define placeholders for tests (e.g. --placeholders key=value)")
	flags.String("placeholder-delimiter", "%", "Which character delimits placeholders in test steps")
	flags.BoolP("verbose", "v", false, "Print verbose logging while running tests")
	flags.Bool("porcelain", false, "Reduce logging to be stable")
	flags.BoolP("interactive", "i", false, "Run toolproof in interactive mode")
	flags.BoolP("all", "a", false, "Run all tests when in interactive mode")
	flags.BoolP("skiphooks", "s", false, "Skip running any hooks (e.g. before_all)")
	flags.Int("timeout", 10, "How long in seconds until a step times out")
	flags.StringP("name", "n", "", "Exact name of a test to run (case-sensitive)")
	flags.String("run-path", "", "Run every test file under a path prefix")
	flags.String("browser", "chrome", "Which browser to use for automation tests (chrome or pagebrowse)")
	flags.Int("retry-count", 0, "How many times to retry failed tests")
	flags.Bool("debugger", false, "Pause before each step of a single-test run")

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(validateCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema for .toolproof.yml test files",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [file.toolproof.yml]",
	Short: "Validate a test file against the schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if err := schema.ValidateDocument(string(src)); err != nil {
			return fmt.Errorf("%s is not a valid test file:\n%w", args[0], err)
		}
		if _, err := schema.ParseFile(string(src), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s is a valid test file\n", args[0])
		return nil
	},
}
