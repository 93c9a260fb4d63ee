package alert

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vitals-systems/siphon/pkg/types"
)

// ConsoleSink writes alerts to standard output.
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleSink creates a new console alert sink.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stdout}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes a one-line rendering of the alert.
func (s *ConsoleSink) Send(_ context.Context, alert types.Alert) error {
	var prefix string
	switch alert.Level {
	case types.AlertLevelError:
		prefix = "[ERROR]"
	case types.AlertLevelWarning:
		prefix = "[WARN]"
	default:
		prefix = "[INFO]"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.Site != "" {
		fmt.Fprintf(s.out, "%s [%s] %s\n", prefix, alert.Site, alert.Message)
	} else {
		fmt.Fprintf(s.out, "%s %s\n", prefix, alert.Message)
	}
	return nil
}
