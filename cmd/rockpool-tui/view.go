package main

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	roomCols = 12
	roomRows = 12

	transcriptPreviewLines = 3
	transcriptPreviewChars = 280
)

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	inputPanel  lipgloss.Style
	helpText    lipgloss.Style

	subjectTag  lipgloss.Style
	agentTag    lipgloss.Style
	respondTag  lipgloss.Style
	respondText lipgloss.Style
	bodyText    lipgloss.Style
	dreamText   lipgloss.Style
	planText    lipgloss.Style
	divider     lipgloss.Style
	dreamBadge  lipgloss.Style
	planBadge   lipgloss.Style

	sectionTitle lipgloss.Style
	selected     lipgloss.Style
	alertBadge   lipgloss.Style
	focusBadge   lipgloss.Style
	mapFloor     lipgloss.Style
	mapEntity    lipgloss.Style
}

func newTheme(accent string) uiTheme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color(accent)
	bg := lipgloss.Color("#0b1120")
	panelBg := lipgloss.Color("#111a2e")
	text := lipgloss.Color("#e8ecff")
	muted := lipgloss.Color("#8b96c4")

	return uiTheme{
		root: lipgloss.NewStyle().
			Background(bg).
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		tabActive: lipgloss.NewStyle().
			Background(mint).
			Foreground(lipgloss.Color("#06281c")).
			Bold(true).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Background(lipgloss.Color("#1d2a47")).
			Foreground(muted).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().
			Foreground(mint).
			Bold(true),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(pink).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		helpText: lipgloss.NewStyle().Foreground(muted),

		subjectTag:  lipgloss.NewStyle().Foreground(mint).Bold(true),
		agentTag:    lipgloss.NewStyle().Foreground(pink).Bold(true),
		respondTag:  lipgloss.NewStyle().Foreground(pink).Background(lipgloss.Color("#2b1038")).Bold(true).Padding(0, 1),
		respondText: lipgloss.NewStyle().Foreground(text).Bold(true),
		bodyText:    lipgloss.NewStyle().Foreground(text),
		dreamText:   lipgloss.NewStyle().Foreground(lipgloss.Color("#b39ddb")).Italic(true),
		planText:    lipgloss.NewStyle().Foreground(blue),
		divider:     lipgloss.NewStyle().Foreground(muted),
		dreamBadge:  lipgloss.NewStyle().Foreground(lipgloss.Color("#b39ddb")).Bold(true),
		planBadge:   lipgloss.NewStyle().Foreground(blue).Bold(true),

		sectionTitle: lipgloss.NewStyle().Foreground(blue).Bold(true),
		selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#06281c")).
			Background(mint).
			Bold(true),
		alertBadge: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#120924")).
			Background(lipgloss.Color("#ffd166")).
			Bold(true).
			Padding(0, 1),
		focusBadge: lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd166")).Bold(true),
		mapFloor:   lipgloss.NewStyle().Foreground(lipgloss.Color("#2e3d63")),
		mapEntity:  lipgloss.NewStyle().Foreground(mint).Bold(true),
	}
}

func (m model) View() string {
	header := m.renderHeader()
	content := m.renderContent()
	input := m.renderInput()
	footer := m.renderFooter()
	out := lipgloss.JoinVertical(lipgloss.Left, header, content, input, footer)
	if m.quitConfirm {
		out = m.renderQuitModal()
	}
	return m.theme.root.Render(out)
}

func (m *model) renderHeader() string {
	transcriptLabel := "Transcript"
	if m.sess != nil && m.sess.view.unseen {
		transcriptLabel = "Transcript •"
	}
	tabs := []struct {
		id    tabID
		label string
	}{
		{tabTranscript, transcriptLabel},
		{tabFiles, "Files"},
		{tabHelp, "Help"},
	}
	segments := make([]string, 0, len(tabs)+1)
	for _, tab := range tabs {
		style := m.theme.tabInactive
		if tab.id == m.activeTab {
			style = m.theme.tabActive
		}
		segments = append(segments, style.Render(tab.label))
	}
	meta := "Host: " + m.cfg.baseURL
	if m.sess != nil {
		name := m.sess.name
		if name == "" {
			name = m.sess.entityID
		}
		meta += " · " + name
		if m.sess.channel != nil {
			meta += " [" + m.sess.channel.state.String() + "]"
		}
	}
	segments = append(segments, m.theme.helpText.Render(" "+meta))
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(joined)
}

func (m *model) renderContent() string {
	contentHeight := maxInt(8, m.height-12)
	contentWidth := maxInt(40, m.width-4)

	switch m.activeTab {
	case tabTranscript:
		leftWidth := int(float64(contentWidth) * 0.62)
		rightWidth := contentWidth - leftWidth - 1
		if rightWidth < 30 {
			rightWidth = 30
			leftWidth = contentWidth - rightWidth - 1
		}
		left := m.theme.panel.Width(leftWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Transcript") + "\n" + m.timeline.View(),
		)
		right := m.theme.panel.Width(rightWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Rockpool") + "\n" + clipLines(m.renderSidebar(rightWidth-4), contentHeight-3),
		)
		return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	case tabFiles:
		panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
		if m.fileOpen {
			title := m.theme.panelTitle.Render("File: " + m.fileName)
			return panel.Render(title + "\n" + m.fileView.View())
		}
		return panel.Render(m.theme.panelTitle.Render("Environment Files") + "\n" + clipLines(m.renderFileList(), contentHeight-3))
	case tabHelp:
		panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
		return panel.Render(m.theme.panelTitle.Render("Rockpool Help") + "\n" + clipLines(m.renderHelp(), contentHeight-3))
	default:
		return ""
	}
}

func (m *model) renderTranscript() string {
	if m.sess == nil {
		return "No entity attached. Waiting for the registry..."
	}
	if !m.sess.booted {
		return m.spinner.View() + " loading transcript..."
	}
	if len(m.sess.lines) == 0 {
		return "Transcript is empty. The entity has not thought yet."
	}

	name := m.sess.name
	if name == "" {
		name = m.sess.entityID
	}
	width := maxInt(24, m.timeline.Width-2)

	var b strings.Builder
	for _, line := range m.sess.lines {
		switch line.side {
		case sideSystem:
			b.WriteString(m.renderSystemLine(line, width))
		case sideSubject:
			b.WriteString(m.theme.subjectTag.Render("world"))
			b.WriteString("\n")
			b.WriteString(wrapText(previewBlock(line.text, transcriptPreviewLines, transcriptPreviewChars), width))
			if line.image != "" && line.text != placeholderImage {
				b.WriteString("\n")
				b.WriteString(m.theme.helpText.Render("[image attached]"))
			}
		case sideAgent:
			b.WriteString(m.renderAgentLine(line, name, width))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderSystemLine(line transcriptLine, width int) string {
	switch line.text {
	case dividerReflecting:
		return m.theme.dreamBadge.Render("· · ·  " + dividerReflecting + "  · · ·")
	case dividerPlanning:
		return m.theme.planBadge.Render("· · ·  " + dividerPlanning + "  · · ·")
	}
	rule := m.theme.divider.Render(strings.Repeat("─", minInt(width, 32)) + " context shift")
	preview := m.theme.helpText.Render(wrapText(previewBlock(line.text, transcriptPreviewLines, transcriptPreviewChars), width))
	return rule + "\n" + preview
}

func (m *model) renderAgentLine(line transcriptLine, name string, width int) string {
	if line.isRespond {
		tag := m.theme.respondTag.Render(name + " says")
		return tag + "\n" + m.theme.respondText.Render(wrapText(line.text, width))
	}
	body := m.theme.bodyText
	tag := m.theme.agentTag.Render(name)
	switch line.phase {
	case phaseDream:
		body = m.theme.dreamText
		tag = m.theme.agentTag.Render(name + " (dreaming)")
	case phasePlanning:
		body = m.theme.planText
		tag = m.theme.agentTag.Render(name + " (planning)")
	}
	return tag + "\n" + body.Render(wrapText(line.text, width))
}

func (m *model) renderSidebar(width int) string {
	var b strings.Builder

	b.WriteString(m.theme.sectionTitle.Render("ENTITIES"))
	b.WriteString("\n")
	if len(m.registry) == 0 {
		b.WriteString(m.theme.helpText.Render("none yet"))
		b.WriteString("\n")
	}
	for i, e := range m.registry {
		if i >= 9 {
			b.WriteString(m.theme.helpText.Render(fmt.Sprintf("... and %d more", len(m.registry)-9)))
			b.WriteString("\n")
			break
		}
		row := fmt.Sprintf("%d. %-10s %-10s %d", i+1, truncate(e.Name, 10), e.State, e.ThoughtCount)
		if m.sess != nil && e.ID == m.sess.entityID {
			b.WriteString(m.theme.selected.Render(row))
		} else {
			b.WriteString(row)
		}
		b.WriteString("\n")
	}

	if m.sess != nil {
		v := m.sess.view
		b.WriteString("\n")
		b.WriteString(m.theme.sectionTitle.Render("STATUS"))
		b.WriteString("\n")
		stateLabel := v.state
		if stateLabel == "" {
			stateLabel = "unknown"
		}
		if stateLabel != stateIdle && stateLabel != "unknown" {
			stateLabel = m.spinner.View() + " " + stateLabel
		}
		b.WriteString("state     " + stateLabel + "\n")
		b.WriteString(fmt.Sprintf("thoughts  %d\n", v.thoughtCount))
		b.WriteString("focus     " + onOff(v.focusMode))
		if v.focusMode {
			b.WriteString(" " + m.theme.focusBadge.Render("FOCUS"))
		}
		b.WriteString("\n")
		if v.activityType != "" {
			detail := v.activityType
			if v.activityDetail != "" {
				detail += ": " + compactSingleLine(v.activityDetail, maxInt(10, width-12))
			}
			b.WriteString("activity  " + detail + "\n")
		}
		if v.alert {
			b.WriteString(m.theme.alertBadge.Render("! wants attention") + "\n")
		}
		if v.conversing {
			remaining := "now"
			if v.replyRemaining > 0 {
				remaining = fmt.Sprintf("%ds left", v.replyRemaining)
			}
			b.WriteString(m.theme.status.Render("reply window open · "+remaining) + "\n")
		}

		b.WriteString("\n")
		b.WriteString(m.theme.sectionTitle.Render("ROOM"))
		b.WriteString("\n")
		for _, row := range roomRowsFor(v.position) {
			b.WriteString(m.styleRoomRow(row))
			b.WriteString("\n")
		}

		if m.sess.identity.Born != "" || m.sess.identity.Traits.Temperament != "" {
			b.WriteString("\n")
			b.WriteString(m.theme.sectionTitle.Render("IDENTITY"))
			b.WriteString("\n")
			if m.sess.identity.Traits.Temperament != "" {
				b.WriteString("temperament  " + m.sess.identity.Traits.Temperament + "\n")
			}
			if m.sess.identity.Born != "" {
				b.WriteString("born         " + shortDate(m.sess.identity.Born) + "\n")
			}
		}
	}

	if len(m.logs) > 0 {
		b.WriteString("\n")
		b.WriteString(m.theme.sectionTitle.Render("LOG"))
		b.WriteString("\n")
		start := maxInt(0, len(m.logs)-6)
		for _, line := range m.logs[start:] {
			b.WriteString(m.theme.helpText.Render(truncate(line, maxInt(12, width))))
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// roomRowsFor draws the habitat grid with the entity marker, unstyled so
// the same rows feed both the sidebar and the snapshot writer.
func roomRowsFor(pos roomPosition) []string {
	x := clampInt(pos.X, 0, roomCols-1)
	y := clampInt(pos.Y, 0, roomRows-1)
	rows := make([]string, 0, roomRows)
	for r := 0; r < roomRows; r++ {
		var row strings.Builder
		for c := 0; c < roomCols; c++ {
			if r == y && c == x {
				row.WriteString("@ ")
			} else {
				row.WriteString("· ")
			}
		}
		rows = append(rows, strings.TrimRight(row.String(), " "))
	}
	return rows
}

func (m *model) styleRoomRow(row string) string {
	if idx := strings.IndexByte(row, '@'); idx >= 0 {
		return m.theme.mapFloor.Render(row[:idx]) +
			m.theme.mapEntity.Render("@") +
			m.theme.mapFloor.Render(row[idx+1:])
	}
	return m.theme.mapFloor.Render(row)
}

// sceneSnapshot renders the room for the host's snapshot intake, framed
// as a data URL the way the graphical observer posts its canvas.
func (m *model) sceneSnapshot() string {
	sess := m.sess
	name := sess.name
	if name == "" {
		name = sess.entityID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "terminal view of %s's room\n", name)
	fmt.Fprintf(&b, "state=%s thoughts=%d focus=%s\n", sess.view.state, sess.view.thoughtCount, onOff(sess.view.focusMode))
	for _, row := range roomRowsFor(sess.view.position) {
		b.WriteString(row)
		b.WriteString("\n")
	}
	return "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte(b.String()))
}

func (m *model) renderFileList() string {
	if m.sess == nil || !m.sess.booted {
		return "No entity attached."
	}
	if m.files == nil {
		return m.spinner.View() + " listing files..."
	}
	if len(m.files) == 0 {
		return "The environment is empty."
	}
	var b strings.Builder
	for i, f := range m.files {
		prefix := "   "
		if i == m.fileIndex {
			prefix = ">> "
		}
		line := prefix + f
		if i == m.fileIndex {
			b.WriteString(m.theme.selected.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.theme.helpText.Render("up/down select · enter open · r refresh · esc back"))
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderHelp() string {
	lines := []string{
		m.theme.sectionTitle.Render("KEYS"),
		"tab / shift+tab   cycle panes",
		"enter             send what you typed into the room",
		"1..9              watch entity N (input must be empty)",
		"up/down, pgup..   scroll the transcript",
		"esc               back, then quit prompt",
		"ctrl+c            quit immediately",
		"",
		m.theme.sectionTitle.Render("SLASH COMMANDS"),
		"/watch <n|id|name>   switch entity",
		"/focus               toggle focus mode",
		"/files               open the environment browser",
		"/refresh             re-poll registry and records",
		"/help /quit",
		"",
		m.theme.sectionTitle.Render("CONFIG"),
		"host        " + m.cfg.baseURL,
		"poll        " + m.cfg.pollInterval.String(),
		"reconnect   " + m.cfg.reconnectDelay.String(),
		fmt.Sprintf("records     %d per bootstrap", m.cfg.recordLimit),
	}
	if m.cfg.configPath != "" {
		lines = append(lines, "file        "+m.cfg.configPath+" (hot reload)")
	}
	if m.cfg.eventLogPath != "" {
		lines = append(lines, "event log   "+m.cfg.eventLogPath)
	}
	if m.sess != nil && m.sess.identity.Name != "" {
		id := m.sess.identity
		lines = append(lines, "", m.theme.sectionTitle.Render("ABOUT "+strings.ToUpper(id.Name)))
		if id.Genome != "" {
			lines = append(lines, "genome      "+truncate(id.Genome, 40))
		}
		if id.Traits.Temperament != "" {
			lines = append(lines, "temperament "+id.Traits.Temperament)
		}
		if len(id.Traits.Domains) > 0 {
			lines = append(lines, "domains     "+strings.Join(id.Traits.Domains, ", "))
		}
		if len(id.Traits.ThinkingStyles) > 0 {
			lines = append(lines, "thinking    "+strings.Join(id.Traits.ThinkingStyles, ", "))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderInput() string {
	contentWidth := maxInt(40, m.width-4)
	if m.activeTab != tabTranscript {
		return m.theme.inputPanel.Width(contentWidth).Render(m.theme.helpText.Render("Input lives on the Transcript pane. Press Tab to return."))
	}
	inputView := m.input.View()
	if m.sess != nil && m.sess.view.conversing {
		remaining := ""
		if m.sess.view.replyRemaining > 0 {
			remaining = fmt.Sprintf(" %ds", m.sess.view.replyRemaining)
		}
		inputView = m.theme.status.Render("reply"+remaining+" ▸") + " " + inputView
	}
	return m.theme.inputPanel.Width(contentWidth).Render(inputView)
}

func (m *model) renderFooter() string {
	contentWidth := maxInt(40, m.width-4)
	statusStyle := m.theme.status
	lower := strings.ToLower(m.statusLine)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "error") || strings.Contains(lower, "unreachable") {
		statusStyle = m.theme.errorStatus
	}
	line := statusStyle.Render(compactSingleLine(m.statusLine, 180))
	hints := m.theme.helpText.Render("Keys: Tab panes · Enter send · 1..9 watch · /help commands · Esc quit prompt · Ctrl+C quit")
	return m.theme.footer.Width(contentWidth).Render(line + "\n" + hints)
}

func (m *model) renderQuitModal() string {
	canvasWidth := maxInt(40, m.width-4)
	canvasHeight := maxInt(12, m.height-4)
	modalWidth := clampInt(int(float64(canvasWidth)*0.5), 36, 64)

	title := m.theme.errorStatus.Render("LEAVE THE ROCKPOOL?")
	subtitle := m.theme.helpText.Render("The entities keep thinking without you.")
	prompt := m.theme.status.Render("[Y / Enter] Quit") + "    " + m.theme.helpText.Render("[N / Esc] Stay")
	body := strings.Join([]string{title, subtitle, "", prompt}, "\n")
	panel := m.theme.inputPanel.Width(modalWidth).Render(body)
	return lipgloss.Place(
		canvasWidth,
		canvasHeight,
		lipgloss.Center,
		lipgloss.Center,
		panel,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("#0b1120")),
	)
}

func (m *model) renderPanes() {
	prevYOffset := m.timeline.YOffset
	prevAtBottom := m.timeline.AtBottom()

	contentHeight := maxInt(8, m.height-12)
	contentWidth := maxInt(40, m.width-4)
	leftWidth := int(float64(contentWidth) * 0.62)
	rightWidth := contentWidth - leftWidth - 1
	if rightWidth < 30 {
		leftWidth = contentWidth - 31
	}

	m.timeline.Width = maxInt(20, leftWidth-4)
	m.timeline.Height = maxInt(5, contentHeight-3)
	m.fileView.Width = maxInt(20, contentWidth-4)
	m.fileView.Height = maxInt(5, contentHeight-3)

	m.timeline.SetContent(m.renderTranscript())
	if prevAtBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(prevYOffset)
	}
}

func (m *model) resize() {
	contentWidth := maxInt(40, m.width-4)
	m.input.Width = maxInt(20, contentWidth-6)
	if m.fileBody != "" {
		m.fileView.SetContent(wrapText(m.fileBody, maxInt(24, contentWidth-6)))
	}
}

func clipLines(s string, height int) string {
	if height <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= height {
		return s
	}
	return strings.Join(lines[:height], "\n")
}

// previewBlock keeps the head of a long block: at most maxLines lines and
// maxChars characters, with an ellipsis when anything was cut.
func previewBlock(text string, maxLines, maxChars int) string {
	trimmed := strings.TrimSpace(text)
	lines := strings.Split(trimmed, "\n")
	cut := false
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		cut = true
	}
	out := strings.Join(lines, "\n")
	if len(out) > maxChars {
		out = out[:maxChars]
		cut = true
	}
	if cut {
		out = strings.TrimRight(out, " \n") + " ..."
	}
	return out
}
