package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
)

// EnvVar names the environment variable holding the default log level.
const EnvVar = "OPENAIO_LOG"

// InitLogger installs the text handler on stderr with the level from
// OPENAIO_LOG, defaulting to info.
func InitLogger() {
	log.SetHandler(NewHandler(os.Stderr))
	level, err := log.ParseLevel(os.Getenv(EnvVar))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// Configure replaces the handler and level of the package logger.
// format is "text" or "json".
func Configure(w io.Writer, level, format string) error {
	l, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	switch strings.ToLower(format) {
	case "", "text":
		log.SetHandler(NewHandler(w))
	case "json":
		log.SetHandler(json.New(w))
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	log.SetLevel(l)
	return nil
}

// Handler writes one line per entry: timestamp, level initial, message and
// the fields sorted by name.
type Handler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewHandler returns a Handler writing to w.
func NewHandler(w io.Writer) *Handler {
	return &Handler{w: w}
}

// HandleLog implements the log.Handler interface.
func (h *Handler) HandleLog(e *log.Entry) error {
	var b strings.Builder
	b.WriteString(e.Timestamp.Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(e.Level.String()[:1]))
	b.WriteByte(' ')
	b.WriteString(e.Message)
	for _, name := range e.Fields.Names() {
		fmt.Fprintf(&b, " %s=%v", name, e.Fields.Get(name))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}
