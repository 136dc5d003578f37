package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormatter renders command results as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Emit writes v: pretty JSON in json mode, the text form otherwise. text is
// evaluated lazily so commands can build it only when needed.
func (f *OutputFormatter) Emit(v any, text func() string) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(f.Writer, text())
	return err
}
