package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		opts  Options
		debug bool
	}{
		{Options{}, false},
		{Options{Verbose: true}, true},
		{Options{Verbose: true, JSON: true}, true},
	}
	for _, tt := range tests {
		log := New(tt.opts)
		if got := log.Core().Enabled(zapcore.DebugLevel); got != tt.debug {
			t.Fatalf("New(%+v) debug enabled = %v, want %v", tt.opts, got, tt.debug)
		}
		if !log.Core().Enabled(zapcore.InfoLevel) {
			t.Fatalf("New(%+v) info disabled", tt.opts)
		}
	}
}
