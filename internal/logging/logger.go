package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file written under the logs directory.
const FileName = "market.log"

// Options controls where the process log goes.
type Options struct {
	// Dir holds market.log. Empty disables the file sink.
	Dir string
	// Console mirrors entries to stderr. Leave off while the TUI owns the terminal.
	Console bool
	// Verbose lowers the level to debug.
	Verbose bool
	// Development switches to the human-readable console encoder.
	Development bool
}

// Path returns the log file location for a logs directory.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// New builds the process logger. Entries are appended to .market/logs/market.log
// so failures can be inspected after the run has finished.
func New(opts Options) (*zap.Logger, error) {
	var outputs []string
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: ensure log dir: %w", err)
		}
		outputs = append(outputs, Path(opts.Dir))
	}
	if opts.Console {
		outputs = append(outputs, "stderr")
	}
	if len(outputs) == 0 {
		return zap.NewNop(), nil
	}

	config := zap.NewProductionConfig()
	if opts.Development {
		config = zap.NewDevelopmentConfig()
	}
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	config.OutputPaths = outputs
	config.ErrorOutputPaths = []string{"stderr"}
	config.Sampling = nil

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}

// Sync flushes buffered entries, ignoring the error stderr returns on some terminals.
func Sync(logger *zap.Logger) {
	if logger == nil {
		return
	}
	_ = logger.Sync()
}
