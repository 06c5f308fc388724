package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aidanjnn/sketchy/internal/generation/artifact"
	"github.com/aidanjnn/sketchy/internal/render"
)

var parseDocument bool

var parseCmd = &cobra.Command{
	Use:   "parse <response.txt|->",
	Short: "Recover an artifact from raw model output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(args[0])
		if err != nil {
			return err
		}

		out, err := artifact.ParseOutput(string(data))
		if err != nil {
			return err
		}
		printVerbose(cmd, "parsed at stage %s", out.Stage)

		w := cmd.OutOrStdout()
		if parseDocument {
			return render.Document("", out.Artifact).Render(context.Background(), w)
		}

		return writeStructured(w, out)
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseDocument, "document", false, "print the assembled HTML document instead of JSON")
	rootCmd.AddCommand(parseCmd)
}
