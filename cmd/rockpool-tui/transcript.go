package main

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

type recordPhase int

const (
	phaseNormal recordPhase = iota
	phaseDream
	phasePlanning
)

func (p recordPhase) String() string {
	switch p {
	case phaseDream:
		return "dream"
	case phasePlanning:
		return "planning"
	default:
		return "normal"
	}
}

type lineSide int

const (
	sideSubject lineSide = iota
	sideAgent
	sideSystem
)

// transcriptLine is one rendered row of the conversation. Derived from the
// record log on every reconciliation, never stored.
type transcriptLine struct {
	side      lineSide
	text      string
	phase     recordPhase
	image     string
	isRespond bool
}

const (
	toolRespond = "respond"
	toolShell   = "shell"

	placeholderImage     = "[image]"
	placeholderWebSearch = "[searching the web]"

	dividerReflecting = "Reflecting..."
	dividerPlanning   = "Planning..."
)

func phaseOf(rec callRecord) recordPhase {
	switch {
	case rec.IsDream:
		return phaseDream
	case rec.IsPlanning:
		return phasePlanning
	default:
		return phaseNormal
	}
}

// reconcile rebuilds the full transcript from the ordered record log. Each
// record's input is the cumulative history it reasoned over and its output is
// a fresh delta, so a single cursor over the input suffices: items below it
// were rendered by an earlier record, items at or above it are new. A record
// whose input is no longer than the cursor started a fresh episode, which
// resets the cursor to zero. The function is pure; running it twice over the
// same log yields the same transcript.
func reconcile(records []callRecord) []transcriptLine {
	lines := make([]transcriptLine, 0, len(records)*2)
	seen := 0
	prevStripped := ""
	seenNormal := false
	prevDream := false
	prevPlanning := false

	for _, rec := range records {
		ph := phaseOf(rec)

		if ph == phaseNormal {
			stripped := stripVolatile(rec.Instructions)
			if !seenNormal || stripped != prevStripped {
				lines = append(lines, transcriptLine{side: sideSystem, text: rec.Instructions, phase: ph})
			}
			prevStripped = stripped
			seenNormal = true
		}
		if ph == phaseDream && !prevDream {
			lines = append(lines, transcriptLine{side: sideSystem, text: dividerReflecting, phase: ph})
		}
		if ph == phasePlanning && !prevPlanning {
			lines = append(lines, transcriptLine{side: sideSystem, text: dividerPlanning, phase: ph})
		}
		prevDream = ph == phaseDream
		prevPlanning = ph == phasePlanning

		if seen >= len(rec.Input) {
			seen = 0
		}
		for idx := seen; idx < len(rec.Input); idx++ {
			if line, ok := classifyInput(rec.Input[idx], ph); ok {
				lines = append(lines, line)
			}
		}
		for _, item := range rec.Output {
			if line, ok := classifyOutput(item, ph); ok {
				lines = append(lines, line)
			}
		}
		seen = len(rec.Input) + len(rec.Output)
	}
	return lines
}

// stripVolatile removes the substrings of an instructions prompt that change
// on every think cycle: the current-time line and the mood/focus section
// (that heading and everything up to the next heading). Divider change
// detection compares instructions after this stripping.
func stripVolatile(instructions string) string {
	lines := strings.Split(instructions, "\n")
	kept := make([]string, 0, len(lines))
	skipping := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if skipping {
			if !strings.HasPrefix(trimmed, "## ") {
				continue
			}
			skipping = false
		}
		if strings.HasPrefix(trimmed, "Right now it is ") {
			continue
		}
		if strings.HasPrefix(trimmed, "## Current mood") || strings.HasPrefix(trimmed, "## Current focus") {
			skipping = true
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// classifyInput maps one raw input item to a transcript line. Only two kinds
// of input are transcript-worthy when new: a user message and a tool result.
// Everything else in the cumulative input is the entity's own history.
func classifyInput(item inputItem, ph recordPhase) (transcriptLine, bool) {
	if item.Type == "function_call_output" {
		return transcriptLine{side: sideSubject, text: item.Output, phase: ph}, true
	}
	if item.Role != "user" {
		return transcriptLine{}, false
	}
	text, image := decodeUserContent(item.Content)
	if text == "" && image != "" {
		text = placeholderImage
	}
	if text == "" && image == "" {
		return transcriptLine{}, false
	}
	return transcriptLine{side: sideSubject, text: text, phase: ph, image: image}, true
}

// decodeUserContent handles the two shapes of a user message body: a plain
// string, or a part list from which the first text and first image are taken.
func decodeUserContent(raw json.RawMessage) (string, string) {
	if len(raw) == 0 {
		return "", ""
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, ""
	}
	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", ""
	}
	text, image := "", ""
	for _, part := range parts {
		if text == "" && part.Type == "input_text" && part.Text != "" {
			text = part.Text
		}
		if image == "" && part.Type == "input_image" && part.ImageURL != "" {
			image = part.ImageURL
		}
	}
	return text, image
}

func classifyOutput(item outputItem, ph recordPhase) (transcriptLine, bool) {
	switch item.Type {
	case "message":
		pieces := make([]string, 0, len(item.Content))
		for _, part := range item.Content {
			if part.Text != "" {
				pieces = append(pieces, part.Text)
				continue
			}
			pieces = append(pieces, "["+part.Type+"]")
		}
		text := strings.Join(pieces, "\n")
		if text == "" {
			return transcriptLine{}, false
		}
		return transcriptLine{side: sideAgent, text: text, phase: ph}, true

	case "function_call":
		switch item.Name {
		case toolRespond:
			text := item.Arguments
			if gjson.Valid(item.Arguments) {
				if msg := gjson.Get(item.Arguments, "message"); msg.Exists() {
					text = msg.String()
				}
			}
			return transcriptLine{side: sideAgent, text: text, phase: ph, isRespond: true}, true
		case toolShell:
			command := item.Arguments
			if gjson.Valid(item.Arguments) {
				if field := gjson.Get(item.Arguments, "command"); field.Exists() {
					command = field.String()
				}
			}
			return transcriptLine{side: sideAgent, text: "$ " + command, phase: ph}, true
		default:
			text := strings.TrimSpace("[" + item.Name + "] " + renderToolArgs(item.Arguments))
			return transcriptLine{side: sideAgent, text: text, phase: ph}, true
		}

	case "web_search_call":
		return transcriptLine{side: sideAgent, text: placeholderWebSearch, phase: ph}, true

	default:
		return transcriptLine{}, false
	}
}

// renderToolArgs flattens a tool's argument payload to one readable line.
// Objects become key=value pairs; anything unparseable passes through raw.
func renderToolArgs(args string) string {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" {
		return ""
	}
	if !gjson.Valid(trimmed) {
		return compactSingleLine(trimmed, 160)
	}
	parsed := gjson.Parse(trimmed)
	if parsed.IsObject() {
		pairs := make([]string, 0, 4)
		parsed.ForEach(func(key, value gjson.Result) bool {
			pairs = append(pairs, key.String()+"="+compactSingleLine(value.String(), 120))
			return true
		})
		if len(pairs) > 0 {
			return strings.Join(pairs, " ")
		}
		return ""
	}
	return compactSingleLine(trimmed, 160)
}
