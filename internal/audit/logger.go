package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// redactedFieldNames flags fields whose value is replaced by [REDACTED] in
// TOOL_CALL audit entries.
var redactedFieldNames = map[string]bool{
	"password":    true,
	"secret":      true,
	"token":       true,
	"api_key":     true,
	"apikey":      true,
	"credential":  true,
	"credentials": true,
	"auth":        true,
}

// Logger writes Events asynchronously through a buffered channel with a
// non-blocking write and a buffered fallback, over the fixed event set
// this package defines.
type Logger struct {
	config  Config
	output  io.WriteCloser
	slogger *slog.Logger
	buffer  chan *Event
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewLogger creates a Logger from config. A disabled logger discards every
// event cheaply.
func NewLogger(config Config) (*Logger, error) {
	if !config.Enabled {
		return &Logger{config: config}, nil
	}
	if config.BufferSize == 0 {
		config.BufferSize = 1000
	}
	if config.MaxResultSize == 0 {
		config.MaxResultSize = 1000
	}

	var output io.WriteCloser
	switch {
	case config.Output == "stdout" || config.Output == "":
		output = os.Stdout
	case config.Output == "stderr":
		output = os.Stderr
	case strings.HasPrefix(config.Output, "file:"):
		path := strings.TrimPrefix(config.Output, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log file: %w", err)
		}
		output = f
	default:
		return nil, fmt.Errorf("unsupported audit output: %s", config.Output)
	}

	var handler slog.Handler
	if config.Format == FormatText {
		handler = slog.NewTextHandler(output, nil)
	} else {
		handler = slog.NewJSONHandler(output, nil)
	}

	l := &Logger{
		config:  config,
		output:  output,
		slogger: slog.New(handler).With("component", "audit"),
		buffer:  make(chan *Event, config.BufferSize),
		done:    make(chan struct{}),
	}
	l.wg.Add(1)
	go l.writeLoop()
	return l, nil
}

// Close flushes remaining events and releases the output file, if any.
func (l *Logger) Close() error {
	if !l.config.Enabled {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	if l.output != os.Stdout && l.output != os.Stderr {
		return l.output.Close()
	}
	return nil
}

// Log writes an Event. Non-blocking: if the async buffer is full, it falls
// back to a synchronous write so events are never silently dropped.
func (l *Logger) Log(ctx context.Context, event *Event) {
	if !l.config.Enabled || event == nil {
		return
	}
	select {
	case l.buffer <- event:
	default:
		l.writeEvent(event)
	}
}

func (l *Logger) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case event := <-l.buffer:
			l.writeEvent(event)
		case <-l.done:
			for {
				select {
				case event := <-l.buffer:
					l.writeEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	attrs := []any{
		"event_kind", string(event.Kind),
		"user", event.User,
	}
	if event.ToolName != "" {
		attrs = append(attrs, "tool_name", event.ToolName)
	}
	if event.RedactedArgs != nil {
		attrs = append(attrs, "redacted_args", event.RedactedArgs)
	}
	if event.TruncatedResult != "" {
		attrs = append(attrs, "truncated_result", event.TruncatedResult)
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}
	if len(event.SanitizedFields) > 0 {
		attrs = append(attrs, "sanitized_fields", event.SanitizedFields)
	}
	if event.Metadata != nil {
		attrs = append(attrs, "metadata", event.Metadata)
	}
	l.slogger.Info("audit_event", attrs...)
}

// RedactArgs returns a deep copy of args with any key matching
// redactedFieldNames replaced by "[REDACTED]", recursing into nested maps.
func RedactArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if redactedFieldNames[strings.ToLower(k)] {
			out[k] = "[REDACTED]"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = RedactArgs(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// TruncateResult clamps s to maxLen bytes, appending a truncation marker
// when it does.
func TruncateResult(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 1000
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...(truncated)"
}
