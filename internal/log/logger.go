package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Level represents log severity levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("invalid log level %q", s)
}

// Logger interface defines structured logging methods
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	SetLevel(level Level)
	SetJSONOutput(enabled bool)
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level      Level
	JSONOutput bool
	// Output receives log lines. Defaults to os.Stderr.
	Output io.Writer
	// Colors forces colored levels on or off. Nil means on when Output is
	// a terminal.
	Colors *bool
}

// DefaultLogger is the default implementation of Logger
type DefaultLogger struct {
	mu         sync.Mutex
	level      Level
	jsonOutput bool
	out        io.Writer
	palette    map[Level]*color.Color
	now        func() time.Time
}

var (
	defaultLogger *DefaultLogger
	once          sync.Once
)

// New creates a new logger with the given configuration
func New(cfg LoggerConfig) *DefaultLogger {
	l := &DefaultLogger{
		level:      cfg.Level,
		jsonOutput: cfg.JSONOutput,
		out:        cfg.Output,
		now:        time.Now,
	}
	if l.out == nil {
		l.out = os.Stderr
	}
	colors := IsTerminal(l.out)
	if cfg.Colors != nil {
		colors = *cfg.Colors
	}
	l.palette = palette(colors)
	return l
}

// Default returns the default logger instance
func Default() *DefaultLogger {
	once.Do(func() {
		defaultLogger = New(LoggerConfig{Level: InfoLevel})
	})
	return defaultLogger
}

// IsTerminal reports whether w is a terminal. NO_COLOR disables it.
func IsTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of w, or 0 if w is not a terminal.
func TerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// pairs splits key-value args. A leading odd argument is returned as extra.
func pairs(args []interface{}) (extra interface{}, kv [][2]interface{}) {
	if len(args)%2 != 0 {
		extra = args[0]
		args = args[1:]
	}
	for i := 0; i < len(args); i += 2 {
		kv = append(kv, [2]interface{}{args[i], args[i+1]})
	}
	return extra, kv
}

// formatMessage formats the message with key-value args
func formatMessage(msg string, args ...interface{}) string {
	if len(args) == 0 {
		return msg
	}

	var sb strings.Builder
	sb.WriteString(msg)

	extra, kv := pairs(args)
	if extra != nil {
		fmt.Fprintf(&sb, " %v", extra)
	}
	for _, p := range kv {
		key, ok := p[0].(string)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, " %s=%v", key, p[1])
	}
	return sb.String()
}

var levelAttrs = map[Level][]color.Attribute{
	DebugLevel: {color.FgCyan},
	InfoLevel:  {color.FgGreen},
	WarnLevel:  {color.FgYellow},
	ErrorLevel: {color.FgRed, color.Bold},
}

func palette(enabled bool) map[Level]*color.Color {
	p := make(map[Level]*color.Color, len(levelAttrs))
	for level, attrs := range levelAttrs {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		p[level] = c
	}
	return p
}

func (l *DefaultLogger) colorize(level Level, s string) string {
	if c, ok := l.palette[level]; ok {
		return c.Sprint(s)
	}
	return s
}

func (l *DefaultLogger) log(level Level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	timestamp := l.now().Format("2006-01-02 15:04:05")

	if l.jsonOutput {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level.String(),
			"message":   msg,
		}
		extra, kv := pairs(args)
		if extra != nil {
			entry["extra"] = fmt.Sprint(extra)
		}
		for _, p := range kv {
			if key, ok := p[0].(string); ok {
				if err, isErr := p[1].(error); isErr {
					entry[key] = err.Error()
				} else {
					entry[key] = p[1]
				}
			}
		}
		data, err := json.Marshal(entry)
		if err != nil {
			data, _ = json.Marshal(map[string]string{
				"timestamp": timestamp,
				"level":     level.String(),
				"message":   formatMessage(msg, args...),
			})
		}
		fmt.Fprintln(l.out, string(data))
		return
	}

	fmt.Fprintf(l.out, "[%s] %s: %s\n", timestamp, l.colorize(level, level.String()), formatMessage(msg, args...))
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	l.log(DebugLevel, msg, args)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	l.log(InfoLevel, msg, args)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	l.log(WarnLevel, msg, args)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.log(ErrorLevel, msg, args)
}

// SetLevel sets the minimum log level
func (l *DefaultLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetJSONOutput enables or disables JSON output
func (l *DefaultLogger) SetJSONOutput(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jsonOutput = enabled
}

// ProgressSpinner shows progress for long-running operations on a terminal.
// On anything else it draws nothing.
type ProgressSpinner struct {
	mu      sync.Mutex
	message string
	frames  []string
	current int
	writer  io.Writer
	enabled bool
	stop    chan struct{}
	done    chan struct{}
}

// NewProgressSpinner creates a new progress spinner writing to w.
func NewProgressSpinner(w io.Writer, message string) *ProgressSpinner {
	return &ProgressSpinner{
		message: message,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		writer:  w,
		enabled: IsTerminal(w),
	}
}

// Start begins the spinner animation
func (p *ProgressSpinner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.animate(p.stop, p.done)
}

// Stop stops the spinner and clears its line.
func (p *ProgressSpinner) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	fmt.Fprint(p.writer, "\r\033[K")
}

// Message updates the spinner message
func (p *ProgressSpinner) Message(msg string) {
	p.mu.Lock()
	p.message = msg
	p.mu.Unlock()
}

func (p *ProgressSpinner) animate(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	cyan := color.New(color.FgCyan)
	cyan.EnableColor()
	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			frame := p.frames[p.current%len(p.frames)]
			p.current++
			fmt.Fprintf(p.writer, "\r%s %s", cyan.Sprint(frame), p.message)
			p.mu.Unlock()
		case <-stop:
			return
		}
	}
}
