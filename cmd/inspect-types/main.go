// Command inspect-types loads YAML scripts, runs static type analysis and
// prints the annotated result.
//
// Usage:
//
//	inspect-types [flags] [script.yaml ...]
//
// With no file arguments the script is read from standard input.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/speakeasy-api/blockjit/pkg/listing"
	"github.com/speakeasy-api/blockjit/pkg/scriptfile"
	"github.com/speakeasy-api/blockjit/typeanalysis"
	"gopkg.in/yaml.v3"
)

const (
	exitOK = iota
	exitErr
	exitUsage
)

type config struct {
	format        string
	color         string
	logLevel      string
	maxLoopPasses int
	warnings      bool
	stats         bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("inspect-types", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cfg config
	fs.StringVar(&cfg.format, "format", "listing", "output format: listing, yaml, schema or fingerprint")
	fs.StringVar(&cfg.color, "color", "auto", "colorize listing output: auto, always or never")
	fs.StringVar(&cfg.logLevel, "log-level", "", "analysis log level written to stderr: error, warn, info or debug")
	fs.IntVar(&cfg.maxLoopPasses, "max-loop-passes", typeanalysis.DefaultOptions().MaxLoopPasses, "fixed-point passes per loop before falling back to unknown (0: automatic)")
	fs.BoolVar(&cfg.warnings, "warnings", true, "print precision-loss warnings to stderr")
	fs.BoolVar(&cfg.stats, "stats", false, "print how many variable accesses can use unboxed storage to stderr")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	switch cfg.format {
	case "listing", "yaml", "schema", "fingerprint":
	default:
		fmt.Fprintf(stderr, "inspect-types: unknown format %q\n", cfg.format)
		return exitUsage
	}

	opts := typeanalysis.DefaultOptions()
	opts.LogLevel = cfg.logLevel
	opts.LogOutput = stderr
	opts.MaxLoopPasses = cfg.maxLoopPasses

	color := useColor(cfg.color, stdout)

	if fs.NArg() == 0 {
		s, err := scriptfile.Load(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "inspect-types: <stdin>: %v\n", err)
			return exitErr
		}
		if err := inspect(s, cfg, opts, color, stdout, stderr); err != nil {
			fmt.Fprintf(stderr, "inspect-types: <stdin>: %v\n", err)
			return exitErr
		}
		return exitOK
	}

	code := exitOK
	for i, path := range fs.Args() {
		s, err := scriptfile.LoadFile(path)
		if err == nil {
			if fs.NArg() > 1 && cfg.format != "fingerprint" {
				if i > 0 {
					fmt.Fprintln(stdout)
				}
				fmt.Fprintf(stdout, "# %s\n", s.Name)
			}
			err = inspect(s, cfg, opts, color, stdout, stderr)
		}
		if err != nil {
			fmt.Fprintf(stderr, "inspect-types: %v\n", err)
			code = exitErr
		}
	}
	return code
}

func inspect(s *scriptfile.Script, cfg config, opts typeanalysis.Options, color bool, stdout, stderr io.Writer) error {
	res, err := typeanalysis.AnalyzeScript(s.List, opts)
	if err != nil {
		return err
	}
	if cfg.warnings {
		for _, w := range res.Warnings {
			fmt.Fprintf(stderr, "warning: %s: %s\n", s.Name, w)
		}
	}
	if cfg.stats {
		fmt.Fprintf(stderr, "%s: %d/%d accesses unboxed\n", s.Name, res.Unboxed, res.Annotated)
	}

	switch cfg.format {
	case "listing":
		return listing.Write(stdout, s.List, listing.Options{Color: color})
	case "yaml":
		s.Annotate()
		out, err := s.Marshal()
		if err != nil {
			return err
		}
		_, err = stdout.Write(out)
		return err
	case "schema":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(typeanalysis.SchemaNode(res.Schema())); err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}
		return enc.Close()
	default:
		_, err := fmt.Fprintf(stdout, "%s  %s\n", res.Fingerprint, s.Name)
		return err
	}
}

func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
