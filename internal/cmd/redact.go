package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/veil-io/veil/internal/audit"
	"github.com/veil-io/veil/internal/config"
	"github.com/veil-io/veil/internal/entity"
)

var (
	redactCategory string
	redactJSON     bool
	redactAudit    bool
)

var redactCmd = &cobra.Command{
	Use:   "redact [file]",
	Short: "Redact PII from a file or stdin",
	Long: `Reads a document from the given file (or stdin when omitted), runs the
detection pipeline, and prints the sanitized text to stdout. With --json
the full result (entities, stats, degraded flag) is printed instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRedact,
}

func init() {
	redactCmd.Flags().StringVar(&redactCategory, "category", "", "document category tag (steers context detection)")
	redactCmd.Flags().BoolVar(&redactJSON, "json", false, "print the full JSON result instead of sanitized text")
	redactCmd.Flags().BoolVar(&redactAudit, "audit", false, "record this run in the audit database")
	rootCmd.AddCommand(redactCmd)
}

func runRedact(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "redact")
	defer span.End()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var text []byte
	if len(args) == 1 {
		text, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading input file: %w", err)
		}
	} else {
		text, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}
	if len(text) == 0 {
		return fmt.Errorf("input is empty")
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	doc := entity.Document{Text: string(text), Category: redactCategory}
	result := p.Run(ctx, doc)

	if result.Degraded {
		log.Warn().Msg("context detection entirely unavailable, output is NOT redacted")
	}

	if redactAudit {
		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
		store, err := audit.NewStore(cfg.AuditDBPath())
		if err != nil {
			return err
		}
		defer store.Close()
		runID, err := store.RecordRun(ctx, doc, result)
		if err != nil {
			return fmt.Errorf("recording audit entry: %w", err)
		}
		log.Info().Str("run_id", runID).Msg("run recorded")
	}

	if redactJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println(result.SanitizedText)
	return nil
}
