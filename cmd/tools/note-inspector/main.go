// cmd/tools/note-inspector/main.go
//
// Runs a sales note through the parse and derivation pipeline without
// touching the CRM, and prints the resulting submission context, warnings
// and payload drafts. Reads the note from a file or stdin:
//
//	note-inspector -file note.txt -date 2025-11-25
//	cat note.txt | note-inspector
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"crm-intake-workers/internal/intake/payload"
	"crm-intake-workers/internal/intake/submission"
	"crm-intake-workers/internal/models"
	parsesalesnote "crm-intake-workers/internal/workers/intake/parse-sales-note"
)

func main() {
	file := flag.String("file", "", "Path to the note text; stdin when omitted")
	date := flag.String("date", "", "Reference date (YYYY-MM-DD); today when omitted")
	drafts := flag.Bool("drafts", true, "Include CRM payload drafts in the output")
	flag.Parse()

	noteText, err := readNote(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read note: %v\n", err)
		os.Exit(1)
	}

	referenceDate := time.Now()
	if *date != "" {
		referenceDate, err = time.Parse("2006-01-02", *date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -date: %v\n", err)
			os.Exit(1)
		}
	}

	builder := submission.NewBuilder(parsesalesnote.BuilderSettingsFromConfig(nil))
	sctx, warnings := parsesalesnote.BuildContext(builder, noteText, models.PriorRecord{}, referenceDate)

	report := map[string]interface{}{
		"context":  sctx.Snapshot(),
		"warnings": warnings,
	}
	if *drafts {
		report["opportunityDraft"] = payload.NewOpportunityAssembler().Assemble(sctx)
		report["customerDraft"] = payload.NewCustomerApplicationAssembler().Assemble(sctx)
		report["duplicateProbe"] = payload.NewDuplicateCheckAssembler().Assemble(sctx)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
		os.Exit(1)
	}
}

func readNote(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
