package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/wesleyorama2/walletprobe/internal/engine"
)

// WriteJSON writes report as indented JSON.
func WriteJSON(w io.Writer, report *engine.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteJSONFile writes report to path. "-" writes to stdout.
func WriteJSONFile(path string, report *engine.Report) error {
	if path == "-" {
		return WriteJSON(os.Stdout, report)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteJSON(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
