// Package cli implements the flag parsing and command dispatch behind
// cmd/videometa, grounded on the teacher's internal/cli.go: cobra owns the
// command tree (version/update), and a hand-rolled flag scan underneath
// handles the per-file parse options the way the teacher layers its own
// MediaInfo-compatible flags under cobra.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hirbod/expo-video-metadata-go/videometa"
)

const (
	exitOK    = 0
	exitError = 1
)

// Options is the set of flags Run recognizes (spec.md's CLI is not
// normative; this mirrors the teacher's Options shape for the fields that
// make sense for this module).
type Options struct {
	Output string // "text" (default), "json", "csv", "yaml"
}

var version = "dev"

// SetVersion is called once from cmd/videometa's init, mirroring the
// teacher's cli.SetVersion.
func SetVersion(v string) { version = v }

// Version prints the resolved build version.
func Version(w io.Writer) {
	fmt.Fprintf(w, "videometa %s\n", version)
}

// Run parses args (argv[0] excluded) and executes the parse-and-render
// pipeline over each file argument, returning a process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	var opts Options
	opts.Output = "text"
	var files []string

	for _, arg := range args {
		switch {
		case arg == "--version":
			Version(stdout)
			return exitOK
		case arg == "--help" || arg == "-h":
			Help(stdout)
			return exitOK
		case strings.HasPrefix(arg, "--output="):
			opts.Output = strings.TrimPrefix(arg, "--output=")
		default:
			files = append(files, arg)
		}
	}

	if len(files) == 0 {
		Help(stdout)
		return exitError
	}

	exitCode := exitOK
	for _, path := range files {
		if err := processFile(path, opts, stdout); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			exitCode = exitError
		}
	}
	return exitCode
}

func processFile(path string, opts Options, stdout io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	result, err := videometa.ParseVideoMetadata(data)
	if err != nil {
		return err
	}
	rendered, err := Render(result, opts.Output)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, rendered)
	return nil
}

// Help prints command usage.
func Help(w io.Writer) {
	fmt.Fprint(w, `videometa [options] <file> [file...]

Options:
  --output=text|json|csv|yaml   result rendering (default text)
  --version                     print version and exit
  --help                        print this message and exit
`)
}
