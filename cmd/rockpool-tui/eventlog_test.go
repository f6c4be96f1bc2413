package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestEventLogAppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	log := newEventLog(path)

	log.record(logStreamOpen, "c1", "")
	log.record(logWriteFailed, "c1", "message: connection refused")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two records, got %d: %q", len(lines), data)
	}

	first := gjson.Parse(lines[0])
	if first.Get("type").String() != logStreamOpen || first.Get("entity").String() != "c1" {
		t.Fatalf("bad first record: %s", lines[0])
	}
	if first.Get("ts_ms").Int() <= 0 {
		t.Fatalf("missing timestamp: %s", lines[0])
	}
	if first.Get("detail").Exists() {
		t.Fatalf("empty detail must be omitted: %s", lines[0])
	}

	second := gjson.Parse(lines[1])
	if second.Get("detail").String() != "message: connection refused" {
		t.Fatalf("bad second record: %s", lines[1])
	}
}

func TestEventLogDisabledIsSilent(t *testing.T) {
	var nilLog *eventLog
	nilLog.record(logStreamOpen, "c1", "")

	newEventLog("").record(logStreamOpen, "c1", "")
}
