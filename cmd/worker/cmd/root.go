// Package cmd contains the worker CLI commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	verbose bool
	format  string
)

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Offline tooling for the sketch-to-site service",
	Long: `worker bundles maintenance and debugging commands.

Examples:
  # Rasterize a canvas snapshot the way the generator sees it
  worker render sketch.json -o sketch.png

  # Recover an artifact from raw model output
  worker parse response.txt --document > site.html
  worker parse response.txt --format yaml

  # Purge projects soft-deleted more than 30 days ago
  worker purge --retention 720h`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&format, "format", "json", "output format (json, yaml)")
}

// writeStructured prints v as indented JSON or as YAML. YAML output goes
// through the JSON encoding so both formats share field names.
func writeStructured(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	switch format {
	case "json":
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// readInput reads the named file, or stdin for "-".
func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func printVerbose(cmd *cobra.Command, msg string, args ...any) {
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), msg+"\n", args...)
	}
}
