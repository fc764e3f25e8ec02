package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// ConsoleLogger implements Tier 1: console/terminal logging with async
// buffered writes and optional colored level tags.
type ConsoleLogger struct {
	config *Config
	writer *bufferedWriter
}

// Level tag colorizers for text output.
var (
	debugTag = color.New(color.FgCyan).SprintFunc()
	infoTag  = color.New(color.FgGreen).SprintFunc()
	warnTag  = color.New(color.FgYellow).SprintFunc()
	errorTag = color.New(color.FgRed, color.Bold).SprintFunc()
)

// NewConsoleLogger creates the console tier writing to stdout.
func NewConsoleLogger(config *Config) *ConsoleLogger {
	return &ConsoleLogger{
		config: config,
		writer: newBufferedWriter(os.Stdout, config.Console.BufferSize, config.Console.FlushInterval),
	}
}

// log formats and buffers a single entry.
func (cl *ConsoleLogger) log(entry *LogEntry) {
	var line []byte
	if cl.config.Format == FormatJSON {
		encoded, err := json.Marshal(entry)
		if err != nil {
			return
		}
		line = append(encoded, '\n')
	} else {
		line = []byte(cl.formatText(entry))
	}
	_, _ = cl.writer.Write(line)
}

// formatText renders "TIME LEVEL [component] message key=value ...".
func (cl *ConsoleLogger) formatText(entry *LogEntry) string {
	var b strings.Builder
	b.WriteString(entry.Timestamp)
	b.WriteByte(' ')
	b.WriteString(cl.levelTag(entry.Level))
	if entry.Component != "" {
		b.WriteString(" [")
		b.WriteString(string(entry.Component))
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(' ')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(fmt.Sprintf("%v", entry.Fields[k]))
		}
	}
	b.WriteByte('\n')
	return b.String()
}

func (cl *ConsoleLogger) levelTag(level LogLevel) string {
	tag := strings.ToUpper(string(level))
	if !cl.config.Console.Color {
		return tag
	}
	switch level {
	case LevelDebug:
		return debugTag(tag)
	case LevelWarn:
		return warnTag(tag)
	case LevelError:
		return errorTag(tag)
	default:
		return infoTag(tag)
	}
}

// Close flushes buffered output.
func (cl *ConsoleLogger) Close() error {
	return cl.writer.Close()
}

// bufferedWriter provides async buffered writing with periodic flushing.
type bufferedWriter struct {
	writer        io.Writer
	buffer        chan []byte
	closeChan     chan struct{}
	flushInterval time.Duration
	mu            sync.Mutex
	closed        bool
}

func newBufferedWriter(w io.Writer, bufferSize int, flushInterval time.Duration) *bufferedWriter {
	bw := &bufferedWriter{
		writer:        w,
		buffer:        make(chan []byte, bufferSize/256), // approximate entry count
		closeChan:     make(chan struct{}),
		flushInterval: flushInterval,
	}
	go bw.flusher()
	return bw
}

// Write implements io.Writer. Takes a copy since callers may reuse the slice.
func (bw *bufferedWriter) Write(p []byte) (int, error) {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return 0, fmt.Errorf("writer is closed")
	}
	bw.mu.Unlock()

	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case bw.buffer <- buf:
		return len(p), nil
	default:
		// Buffer full, write directly
		return bw.writer.Write(p)
	}
}

func (bw *bufferedWriter) flusher() {
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case buf := <-bw.buffer:
			_, _ = bw.writer.Write(buf)
		case <-ticker.C:
			bw.drain()
		case <-bw.closeChan:
			bw.drain()
			return
		}
	}
}

func (bw *bufferedWriter) drain() {
	for {
		select {
		case buf := <-bw.buffer:
			_, _ = bw.writer.Write(buf)
		default:
			return
		}
	}
}

// Close stops the flusher and drains remaining buffered writes.
func (bw *bufferedWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return nil
	}
	bw.closed = true
	bw.mu.Unlock()

	close(bw.closeChan)
	bw.drain()
	return nil
}
