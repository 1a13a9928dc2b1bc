package cli

import (
	"fmt"
	"io"
)

// HelpOutput documents the --output flag's accepted values.
func HelpOutput(w io.Writer) {
	fmt.Fprintln(w, "--output=...  select an output format")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Supported formats: text, json, csv, yaml")
}
