package longpolling

import "github.com/go-logr/logr"

var logger = logr.Discard()

// SetLogger replaces the package logger. The default discards all output.
func SetLogger(l logr.Logger) {
	logger = l
}
