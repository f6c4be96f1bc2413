package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tidwall/gjson"
)

// Event kinds pushed by the host on the live stream. Anything else is
// ignored, never an error.
const (
	eventCallRecord   = "call_record"
	eventPosition     = "position"
	eventStatus       = "status"
	eventAlert        = "alert"
	eventActivity     = "activity"
	eventFocusMode    = "focus_mode"
	eventConversation = "conversation"
)

type channelState int

const (
	channelClosed channelState = iota
	channelConnecting
	channelOpen
	channelError
)

func (s channelState) String() string {
	switch s {
	case channelConnecting:
		return "connecting"
	case channelOpen:
		return "live"
	case channelError:
		return "error"
	default:
		return "closed"
	}
}

// liveChannel owns one attachment to an entity's event stream. The inbound
// queue carries reader results into the program loop. Staleness checks
// compare liveChannel pointers: after a switch or teardown the model holds a
// different pointer, so a late message or reconnect timer from the old
// channel matches nothing and is discarded.
type liveChannel struct {
	entityID string
	cancel   context.CancelFunc
	inbound  chan tea.Msg
	state    channelState
	lastErr  string
}

type streamOpenMsg struct {
	ch *liveChannel
}

type streamEventMsg struct {
	ch   *liveChannel
	kind string
	data []byte
}

type streamClosedMsg struct {
	ch  *liveChannel
	err error
}

type reconnectMsg struct {
	ch *liveChannel
}

// openChannel builds a channel object and starts its reader. The caller arms
// waitStream to receive what the reader produces.
func openChannel(client hostClient, entityID string) (*liveChannel, tea.Cmd) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := &liveChannel{
		entityID: entityID,
		cancel:   cancel,
		inbound:  make(chan tea.Msg, 64),
		state:    channelConnecting,
	}
	go runEventStream(ctx, client, ch)
	return ch, waitStream(ch)
}

// waitStream delivers the next reader message. Update re-arms it only while
// the channel is still the current one; a detached channel's queue is closed
// by its reader, which makes a leftover waitStream return nil once and stop.
func waitStream(ch *liveChannel) tea.Cmd {
	return func() tea.Msg {
		return <-ch.inbound
	}
}

func (ch *liveChannel) detach() {
	if ch == nil {
		return
	}
	ch.cancel()
}

func (ch *liveChannel) push(ctx context.Context, msg tea.Msg) bool {
	select {
	case ch.inbound <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func runEventStream(ctx context.Context, client hostClient, ch *liveChannel) {
	defer close(ch.inbound)

	body, err := client.openStream(ctx, ch.entityID)
	if err != nil {
		ch.push(ctx, streamClosedMsg{ch: ch, err: err})
		return
	}
	defer body.Close()
	ch.push(ctx, streamOpenMsg{ch: ch})

	reader := bufio.NewReaderSize(body, 32<<10)
	for {
		line, err := reader.ReadBytes('\n')
		if frame := bytes.TrimSpace(line); len(frame) > 0 {
			if kind, data, ok := decodeFrame(frame); ok {
				if !ch.push(ctx, streamEventMsg{ch: ch, kind: kind, data: data}) {
					return
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = nil
			}
			ch.push(ctx, streamClosedMsg{ch: ch, err: err})
			return
		}
	}
}

// decodeFrame splits one NDJSON line into its event kind and raw data. The
// alert frame legitimately carries no data at all.
func decodeFrame(line []byte) (string, []byte, bool) {
	if !gjson.ValidBytes(line) {
		return "", nil, false
	}
	kind := gjson.GetBytes(line, "event").String()
	if kind == "" {
		return "", nil, false
	}
	data := gjson.GetBytes(line, "data")
	return kind, []byte(data.Raw), true
}

type statusEvent struct {
	State        string `json:"state"`
	ThoughtCount int    `json:"thought_count"`
}

type activityEvent struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

type focusModeEvent struct {
	Enabled bool `json:"enabled"`
}

type conversationEvent struct {
	State   string `json:"state"`
	Message string `json:"message"`
	Timeout int    `json:"timeout"`
}

func decodeEvent[T any](data []byte) (T, bool) {
	var value T
	if len(data) == 0 {
		return value, false
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, false
	}
	return value, true
}

// classifyStreamError condenses a transport failure into a short status-line
// label. The failures worth naming arrive flattened inside url.Error text,
// so matching is on the message.
func classifyStreamError(err error) string {
	if err == nil {
		return "closed"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"):
		return "host unreachable"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timed out"
	case strings.Contains(msg, "not found"), strings.Contains(msg, "404"):
		return "stream not found"
	default:
		return "stream error"
	}
}
