// Package logging assembles the process-wide slog handler stack: a text
// handler on stderr for interactive use, an optional file handler, and the
// systemd journal when the process runs as a service.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options configures Setup.
type Options struct {
	Level string // debug, info, warn, error; default info
	File  string // optional log file, appended to
}

// Setup builds the logger and returns it along with a close function for
// the file handler's descriptor.
func Setup(opts Options) (*slog.Logger, func() error, error) {
	level := parseLevel(opts.Level)
	closeFn := func() error { return nil }

	var handlers []slog.Handler

	inService := runningUnderSystemd()
	if !inService {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		closeFn = f.Close
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	if inService {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			ReplaceGroup: toJournalKey,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			// Fall back to stderr rather than logging nowhere.
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		} else {
			handlers = append(handlers, journal)
		}
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(io.Discard, nil))
	}

	return slog.New(slogmulti.Fanout(handlers...)), closeFn, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// runningUnderSystemd reports whether the process cgroup belongs to a
// systemd service unit.
func runningUnderSystemd() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.Split(string(content), ":")
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service")
}

// toJournalKey maps an attribute key to the journal's field charset.
func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}
