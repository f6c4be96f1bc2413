package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func userItem(text string) inputItem {
	raw, _ := json.Marshal(text)
	return inputItem{Role: "user", Content: raw}
}

func toolResultItem(output string) inputItem {
	return inputItem{Type: "function_call_output", Name: "shell", CallID: "call_1", Output: output}
}

func respondOutput(message string) outputItem {
	args, _ := json.Marshal(map[string]string{"message": message})
	return outputItem{Type: "function_call", Name: toolRespond, Arguments: string(args), CallID: "call_2"}
}

func messageOutput(text string) outputItem {
	return outputItem{Type: "message", Content: []outputPart{{Type: "text", Text: text}}}
}

func TestReconcileEndToEndExample(t *testing.T) {
	records := []callRecord{
		{
			Instructions: "You are a small crab.",
			Input:        []inputItem{userItem("hi")},
			Output:       []outputItem{respondOutput("hello")},
		},
		{
			Instructions: "You are a small crab.",
			Input:        []inputItem{userItem("hi"), toolResultItem("ok")},
			Output:       []outputItem{},
		},
	}
	lines := reconcile(records)

	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %+v", len(lines), lines)
	}
	if lines[0].side != sideSystem || lines[0].text != "You are a small crab." {
		t.Fatalf("expected leading system divider with instructions, got %+v", lines[0])
	}
	if lines[1].side != sideSubject || lines[1].text != "hi" {
		t.Fatalf("expected subject 'hi', got %+v", lines[1])
	}
	if lines[2].side != sideAgent || lines[2].text != "hello" || !lines[2].isRespond {
		t.Fatalf("expected respond 'hello', got %+v", lines[2])
	}
	// Record 2's input length (2) does not exceed the cursor (2), so the
	// whole input replays as new.
	if lines[3].side != sideSubject || lines[3].text != "hi" {
		t.Fatalf("expected replayed 'hi' after reset, got %+v", lines[3])
	}
	if lines[4].side != sideSubject || lines[4].text != "ok" {
		t.Fatalf("expected replayed tool result 'ok', got %+v", lines[4])
	}
}

func TestReconcileOutputsExactlyOnce(t *testing.T) {
	records := []callRecord{
		{
			Instructions: "base",
			Input:        []inputItem{userItem("one")},
			Output:       []outputItem{messageOutput("think-1"), respondOutput("say-1")},
		},
		{
			Instructions: "base",
			Input: []inputItem{
				userItem("one"),
				{Type: "message", Role: "assistant", Content: json.RawMessage(`"think-1"`)},
				toolResultItem("result-1"),
				userItem("two"),
			},
			Output: []outputItem{respondOutput("say-2")},
		},
	}
	lines := reconcile(records)

	for _, want := range []string{"think-1", "say-1", "say-2"} {
		if countLines(lines, want) != 1 {
			t.Fatalf("expected output %q exactly once, got %d", want, countLines(lines, want))
		}
	}

	// Reconciliation is a pure function of the log: a second pass over the
	// same records yields the same transcript.
	again := reconcile(records)
	if len(again) != len(lines) {
		t.Fatalf("expected deterministic reconciliation, got %d then %d lines", len(lines), len(again))
	}
	for i := range lines {
		if lines[i] != again[i] {
			t.Fatalf("line %d differs between passes: %+v vs %+v", i, lines[i], again[i])
		}
	}
}

func TestReconcileNoDuplicateInputOnGrowth(t *testing.T) {
	records := []callRecord{
		{
			Instructions: "base",
			Input:        []inputItem{userItem("hello there")},
			Output:       []outputItem{respondOutput("hi")},
		},
		{
			Instructions: "base",
			// Cumulative input: the prior user message and the think-loop
			// items sit below the cursor; only the trailing user message
			// is new.
			Input: []inputItem{
				userItem("hello there"),
				{Type: "function_call", Name: "shell", Content: nil},
				userItem("second message"),
			},
			Output: []outputItem{},
		},
	}
	lines := reconcile(records)

	if countLines(lines, "hello there") != 1 {
		t.Fatalf("expected 'hello there' once, got %d", countLines(lines, "hello there"))
	}
	if countLines(lines, "second message") != 1 {
		t.Fatalf("expected 'second message' once, got %d", countLines(lines, "second message"))
	}
}

func TestReconcileResetReplaysShorterInput(t *testing.T) {
	records := []callRecord{
		{
			Instructions: "base",
			Input:        []inputItem{userItem("a"), userItem("b"), userItem("c")},
			Output:       []outputItem{respondOutput("done")},
		},
		{
			Instructions: "base",
			Input:        []inputItem{userItem("fresh start")},
			Output:       []outputItem{},
		},
	}
	lines := reconcile(records)

	if countLines(lines, "fresh start") != 1 {
		t.Fatalf("expected reset to replay the shorter input, lines: %+v", lines)
	}
}

func TestSystemDividerSuppressedForVolatileChanges(t *testing.T) {
	base := "You are a small crab.\nRight now it is 2026-02-01T10:00:00.\n## Current mood\nsleepy\n\n## Style — IMPORTANT\nbe brief"
	later := "You are a small crab.\nRight now it is 2026-02-01T10:05:00.\n## Current mood\nbouncy\n\n## Style — IMPORTANT\nbe brief"
	records := []callRecord{
		{Instructions: base, Input: []inputItem{userItem("x")}, Output: []outputItem{}},
		{Instructions: later, Input: []inputItem{userItem("x"), userItem("y")}, Output: []outputItem{}},
	}
	lines := reconcile(records)

	dividers := 0
	for _, line := range lines {
		if line.side == sideSystem {
			dividers++
		}
	}
	if dividers != 1 {
		t.Fatalf("expected exactly one system divider, got %d", dividers)
	}
}

func TestSystemDividerEmittedForRealChange(t *testing.T) {
	records := []callRecord{
		{Instructions: "persona one", Input: []inputItem{userItem("x")}, Output: []outputItem{}},
		{Instructions: "persona two", Input: []inputItem{userItem("x"), userItem("y")}, Output: []outputItem{}},
	}
	lines := reconcile(records)

	var texts []string
	for _, line := range lines {
		if line.side == sideSystem {
			texts = append(texts, line.text)
		}
	}
	if len(texts) != 2 || texts[0] != "persona one" || texts[1] != "persona two" {
		t.Fatalf("expected two system dividers carrying the instructions, got %v", texts)
	}
}

func TestReflectingDividerEmittedOnce(t *testing.T) {
	dream := func(text string) callRecord {
		return callRecord{
			Instructions: "dream prompt",
			IsDream:      true,
			Input:        []inputItem{},
			Output:       []outputItem{messageOutput(text)},
		}
	}
	lines := reconcile([]callRecord{dream("d1"), dream("d2"), dream("d3")})

	if countLines(lines, dividerReflecting) != 1 {
		t.Fatalf("expected a single %q divider, got %d", dividerReflecting, countLines(lines, dividerReflecting))
	}
	for _, text := range []string{"d1", "d2", "d3"} {
		if countLines(lines, text) != 1 {
			t.Fatalf("expected dream output %q once", text)
		}
	}
}

func TestPlanningDividerEmittedOnce(t *testing.T) {
	plan := callRecord{
		Instructions: "plan prompt",
		IsPlanning:   true,
		Input:        []inputItem{},
		Output:       []outputItem{messageOutput("step one")},
	}
	lines := reconcile([]callRecord{plan, plan})

	if countLines(lines, dividerPlanning) != 1 {
		t.Fatalf("expected a single %q divider", dividerPlanning)
	}
	for _, line := range lines {
		if line.text == "step one" && line.phase != phasePlanning {
			t.Fatalf("expected planning phase on output line, got %v", line.phase)
		}
	}
}

func TestPhaseOfDreamWinsOverPlanning(t *testing.T) {
	rec := callRecord{IsDream: true, IsPlanning: true}
	if phaseOf(rec) != phaseDream {
		t.Fatalf("expected dream to take precedence, got %v", phaseOf(rec))
	}
	if phaseOf(callRecord{}) != phaseNormal {
		t.Fatalf("expected normal phase for plain record")
	}
}

func TestStripVolatileDropsTimeAndMood(t *testing.T) {
	instructions := strings.Join([]string{
		"You are a small crab.",
		"Right now it is 2026-02-01T10:00:00.",
		"## Current mood",
		"grumpy",
		"restless",
		"",
		"## Style — IMPORTANT",
		"be brief",
	}, "\n")
	stripped := stripVolatile(instructions)

	if strings.Contains(stripped, "Right now it is") {
		t.Fatalf("expected current-time line removed: %q", stripped)
	}
	if strings.Contains(stripped, "grumpy") || strings.Contains(stripped, "restless") {
		t.Fatalf("expected mood body removed: %q", stripped)
	}
	if !strings.Contains(stripped, "## Style — IMPORTANT") || !strings.Contains(stripped, "be brief") {
		t.Fatalf("expected following section kept: %q", stripped)
	}
	if !strings.Contains(stripped, "You are a small crab.") {
		t.Fatalf("expected persona line kept: %q", stripped)
	}
}

func TestStripVolatileDropsFocusSection(t *testing.T) {
	instructions := "persona\n## Current focus\nshipping\n## Tools\nshell"
	stripped := stripVolatile(instructions)
	if strings.Contains(stripped, "shipping") {
		t.Fatalf("expected focus body removed: %q", stripped)
	}
	if !strings.Contains(stripped, "## Tools") {
		t.Fatalf("expected next heading kept: %q", stripped)
	}
}

func TestClassifyInputUserVariants(t *testing.T) {
	line, ok := classifyInput(userItem("plain words"), phaseNormal)
	if !ok || line.side != sideSubject || line.text != "plain words" {
		t.Fatalf("plain string user message mishandled: %+v ok=%v", line, ok)
	}

	parts := json.RawMessage(`[{"type":"input_text","text":"look at this"},{"type":"input_image","image_url":"data:image/png;base64,xx"}]`)
	line, ok = classifyInput(inputItem{Role: "user", Content: parts}, phaseNormal)
	if !ok || line.text != "look at this" || line.image == "" {
		t.Fatalf("part-list user message mishandled: %+v ok=%v", line, ok)
	}

	imageOnly := json.RawMessage(`[{"type":"input_image","image_url":"data:image/png;base64,xx"}]`)
	line, ok = classifyInput(inputItem{Role: "user", Content: imageOnly}, phaseNormal)
	if !ok || line.text != placeholderImage {
		t.Fatalf("image-only message should use placeholder, got %+v ok=%v", line, ok)
	}

	if _, ok := classifyInput(inputItem{Role: "user", Content: json.RawMessage(`[]`)}, phaseNormal); ok {
		t.Fatalf("empty content should yield nothing")
	}
}

func TestClassifyInputNonSubjectDropped(t *testing.T) {
	if _, ok := classifyInput(inputItem{Role: "assistant", Content: json.RawMessage(`"old thought"`)}, phaseNormal); ok {
		t.Fatalf("assistant history must not re-emit")
	}
	if _, ok := classifyInput(inputItem{Type: "web_search_call"}, phaseNormal); ok {
		t.Fatalf("search-call history must not re-emit")
	}
	if _, ok := classifyInput(inputItem{Type: "function_call", Name: "shell"}, phaseNormal); ok {
		t.Fatalf("function-call history must not re-emit")
	}
}

func TestClassifyInputToolResult(t *testing.T) {
	line, ok := classifyInput(toolResultItem("exit status 0\nhello"), phaseNormal)
	if !ok || line.side != sideSubject {
		t.Fatalf("tool result should map to subject side: %+v ok=%v", line, ok)
	}
	if line.text != "exit status 0\nhello" {
		t.Fatalf("tool output must pass through verbatim, got %q", line.text)
	}
}

func TestClassifyOutputMessageJoinsParts(t *testing.T) {
	item := outputItem{Type: "message", Content: []outputPart{
		{Type: "text", Text: "first"},
		{Type: "refusal"},
		{Type: "text", Text: "second"},
	}}
	line, ok := classifyOutput(item, phaseNormal)
	if !ok {
		t.Fatalf("expected message output to emit")
	}
	if line.text != "first\n[refusal]\nsecond" {
		t.Fatalf("unexpected joined message: %q", line.text)
	}
	if line.side != sideAgent || line.isRespond {
		t.Fatalf("message output should be a plain agent line: %+v", line)
	}

	if _, ok := classifyOutput(outputItem{Type: "message"}, phaseNormal); ok {
		t.Fatalf("empty message should yield nothing")
	}
}

func TestClassifyOutputRespond(t *testing.T) {
	line, ok := classifyOutput(respondOutput("hello out loud"), phaseNormal)
	if !ok || !line.isRespond || line.text != "hello out loud" {
		t.Fatalf("respond invocation mishandled: %+v ok=%v", line, ok)
	}

	broken := outputItem{Type: "function_call", Name: toolRespond, Arguments: `{"message": truncated`}
	line, ok = classifyOutput(broken, phaseNormal)
	if !ok || !line.isRespond {
		t.Fatalf("broken respond args should still emit: %+v ok=%v", line, ok)
	}
	if line.text != `{"message": truncated` {
		t.Fatalf("expected raw fallback, got %q", line.text)
	}
}

func TestClassifyOutputShell(t *testing.T) {
	item := outputItem{Type: "function_call", Name: toolShell, Arguments: `{"command":"ls -la"}`}
	line, ok := classifyOutput(item, phaseNormal)
	if !ok || line.text != "$ ls -la" {
		t.Fatalf("shell invocation mishandled: %+v ok=%v", line, ok)
	}

	raw := outputItem{Type: "function_call", Name: toolShell, Arguments: "not json at all"}
	line, _ = classifyOutput(raw, phaseNormal)
	if line.text != "$ not json at all" {
		t.Fatalf("expected raw fallback for shell args, got %q", line.text)
	}
}

func TestClassifyOutputGenericToolAndSearch(t *testing.T) {
	item := outputItem{Type: "function_call", Name: "move", Arguments: `{"location":"sofa"}`}
	line, ok := classifyOutput(item, phaseNormal)
	if !ok || line.text != "[move] location=sofa" {
		t.Fatalf("generic tool rendering mishandled: %+v ok=%v", line, ok)
	}

	line, ok = classifyOutput(outputItem{Type: "web_search_call", CallID: "ws_1"}, phaseNormal)
	if !ok || line.text != placeholderWebSearch {
		t.Fatalf("web search should render the placeholder: %+v ok=%v", line, ok)
	}

	if _, ok := classifyOutput(outputItem{Type: "reasoning"}, phaseNormal); ok {
		t.Fatalf("unknown output kinds should yield nothing")
	}
}

func TestRenderToolArgs(t *testing.T) {
	if got := renderToolArgs(`{"location":"rock","speed":"slow"}`); got != "location=rock speed=slow" {
		t.Fatalf("unexpected object rendering: %q", got)
	}
	if got := renderToolArgs("free text"); got != "free text" {
		t.Fatalf("non-JSON args should pass through, got %q", got)
	}
	if got := renderToolArgs(""); got != "" {
		t.Fatalf("empty args should stay empty, got %q", got)
	}
}

func countLines(lines []transcriptLine, text string) int {
	n := 0
	for _, line := range lines {
		if line.text == text {
			n++
		}
	}
	return n
}
