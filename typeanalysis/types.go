package typeanalysis

import (
	"io"

	"github.com/speakeasy-api/blockjit"
)

// Options configures the analysis.
type Options struct {
	// MaxLoopPasses bounds the fixed-point iteration of a single loop.
	// A loop that has not stabilised by then is treated as Unknown.
	// Zero picks a bound every loop of the list is guaranteed to meet (default: 0).
	MaxLoopPasses int

	// EnableWarnings collects precision-loss notes into Result.Warnings (default: true).
	EnableWarnings bool

	// Logging configuration. An empty LogLevel disables logging unless Logger is set.
	LogLevel  string    // "error", "warn", "info", "debug"
	LogOutput io.Writer // default: os.Stderr
	Logger    Logger    // overrides LogLevel and LogOutput when non-nil

	// LogMaxVariables caps how many variable names a summary log line prints (default: 5).
	LogMaxVariables int
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		MaxLoopPasses:   0,
		EnableWarnings:  true,
		LogLevel:        "",
		LogMaxVariables: 5,
	}
}

// VariableSummary describes one variable after analysis.
type VariableSummary struct {
	Variable *blockjit.Variable
	Reads    int
	Writes   int

	// Observed is the union of the types seen before every read and write.
	Observed blockjit.StaticType
	// Stored is the union of the types the script itself writes.
	// Unknown when the variable is never written.
	Stored blockjit.StaticType
}

// Result is the outcome of AnalyzeScript.
type Result struct {
	Variables   []VariableSummary
	Annotated   int    // Number of read/write instructions given a TargetType
	Unboxed     int    // Annotated instructions whose TargetType is a single concrete type
	Fingerprint string // Hash of all annotations, see Fingerprint
	Warnings    []string
}
