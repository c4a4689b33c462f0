// Package logging sets up the process-wide logr logger.
package logging

import (
	"flag"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/mattn/go-isatty"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Options returns zap options for a process writing to out. The
// development encoder is used when DEBUG=true or out is a terminal.
func Options(out io.Writer) zap.Options {
	return zap.Options{
		Development: os.Getenv("DEBUG") == "true" || IsTerminal(out),
		DestWriter:  out,
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// BindFlags registers the zap flags on fs and returns the options they
// fill in.
func BindFlags(fs *flag.FlagSet, out io.Writer) *zap.Options {
	opts := Options(out)
	opts.BindFlags(fs)
	return &opts
}

// New builds a logger from opts.
func New(opts *zap.Options) logr.Logger {
	return zap.New(zap.UseFlagOptions(opts))
}
