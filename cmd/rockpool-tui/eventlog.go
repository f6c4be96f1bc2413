package main

import (
	"os"
	"sync"
	"time"

	"github.com/tidwall/sjson"
)

// Client lifecycle events written to the JSONL event log.
const (
	logStreamOpen      = "stream_open"
	logStreamClosed    = "stream_closed"
	logStreamError     = "stream_error"
	logBootstrapOK     = "bootstrap_ok"
	logBootstrapFailed = "bootstrap_failed"
	logWriteFailed     = "write_failed"
	logConfigReloaded  = "config_reloaded"
)

// eventLog appends one JSON object per line. Logging is best-effort: a nil
// log, an empty path, or a write failure all drop the record silently, since
// the log exists for post-mortems and must never disturb the session.
type eventLog struct {
	mu   sync.Mutex
	path string
}

func newEventLog(path string) *eventLog {
	return &eventLog{path: path}
}

func (l *eventLog) record(kind, entityID, detail string) {
	if l == nil || l.path == "" {
		return
	}
	line, err := sjson.SetBytes([]byte(`{}`), "ts_ms", time.Now().UnixMilli())
	if err != nil {
		return
	}
	line, _ = sjson.SetBytes(line, "type", kind)
	if entityID != "" {
		line, _ = sjson.SetBytes(line, "entity", entityID)
	}
	if detail != "" {
		line, _ = sjson.SetBytes(line, "detail", detail)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}
