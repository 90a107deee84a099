package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/veil-io/veil/internal/classifier"
	"github.com/veil-io/veil/internal/config"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the active pattern recognizers",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "patterns")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		scanner, err := classifier.NewScanner(classifier.WithPatternFile(cfg.PatternFile))
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RECOGNIZER\tTYPE\tSCORE\tSENSITIVITY\tREGEX")
		for _, p := range scanner.Recognizers() {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%s\n", p.Name, p.Type, p.Score, p.Sensitivity, p.Pattern.String())
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(patternsCmd)
}
