package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type tabID int

const (
	tabTranscript tabID = iota
	tabFiles
	tabHelp
)

const (
	stateIdle       = "idle"
	stateThinking   = "thinking"
	stateReflecting = "reflecting"
	statePlanning   = "planning"
)

// viewState is the ephemeral per-entity display state fed by the live
// channel. It is rebuilt from scratch on every entity switch.
type viewState struct {
	position       roomPosition
	state          string
	thoughtCount   int
	alert          bool
	activityType   string
	activityDetail string
	focusMode      bool
	conversing     bool
	replyRemaining int
	unseen         bool
}

// session owns everything tied to the entity currently being observed:
// its record history, the reconciled transcript, the live channel, and
// the view state. Switching entities tears the whole session down and
// starts a new one; async results stamped with an older generation are
// discarded when they arrive.
type session struct {
	gen      int
	entityID string
	name     string
	identity entityIdentity
	records  []callRecord
	lines    []transcriptLine
	view     viewState
	channel  *liveChannel
	booted   bool
}

func (s *session) teardown() {
	if s == nil {
		return
	}
	s.channel.detach()
	s.channel = nil
}

type tickMsg time.Time

type registryMsg struct {
	list []entitySummary
	err  error
}

type bootstrapMsg struct {
	gen      int
	entityID string
	records  []callRecord
	status   entityStatus
	identity entityIdentity
	err      error
}

type retryBootstrapMsg struct {
	gen int
}

type replyTickMsg struct {
	gen int
}

type writeDoneMsg struct {
	op  string
	err error
}

type filesMsg struct {
	gen   int
	files []string
	err   error
}

type fileBodyMsg struct {
	gen     int
	path    string
	content string
	err     error
}

type model struct {
	cfg    appConfig
	client hostClient
	events *eventLog

	registry []entitySummary
	sess     *session
	nextGen  int
	replyGen int

	activeTab   tabID
	quitConfirm bool
	statusLine  string
	logs        []string

	files     []string
	fileIndex int
	fileOpen  bool
	fileName  string
	fileBody  string

	cfgEvents chan tea.Msg

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	fileView viewport.Model
	spinner  spinner.Model
	theme    uiTheme
}

func newModel(cfg appConfig) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Speak into the room. Slash commands: /help /watch /focus /files /refresh /quit"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.accent))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4
	fileView := viewport.New(0, 0)
	fileView.MouseWheelEnabled = true
	fileView.MouseWheelDelta = 4

	return model{
		cfg:        cfg,
		client:     newHostClient(cfg.baseURL, cfg.requestTimeout),
		events:     newEventLog(cfg.eventLogPath),
		statusLine: "connecting to " + cfg.baseURL + "...",
		logs:       []string{},
		activeTab:  tabTranscript,
		cfgEvents:  make(chan tea.Msg, 4),
		input:      input,
		timeline:   timeline,
		fileView:   fileView,
		spinner:    sp,
		theme:      newTheme(cfg.accent),
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		pollRegistryCmd(m.client),
		tickEvery(m.cfg.pollInterval),
	}
	if m.cfg.configPath != "" {
		cmds = append(cmds, watchConfig(m.cfg.configPath, m.cfgEvents))
	}
	return tea.Batch(cmds...)
}

func tickEvery(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func pollRegistryCmd(client hostClient) tea.Cmd {
	return func() tea.Msg {
		list, err := client.entities(context.Background())
		return registryMsg{list: list, err: err}
	}
}

// bootstrapCmd loads the record backlog, the status block, and the
// identity card concurrently and reports them as a single message. A
// failure in any read fails the whole bootstrap; partial state never
// reaches the session.
func bootstrapCmd(client hostClient, entityID string, limit, gen int) tea.Cmd {
	return func() tea.Msg {
		msg := bootstrapMsg{gen: gen, entityID: entityID}
		var wg sync.WaitGroup
		var recErr, statusErr, identityErr error
		wg.Add(3)
		go func() {
			defer wg.Done()
			msg.records, recErr = client.recentRecords(context.Background(), entityID, limit)
		}()
		go func() {
			defer wg.Done()
			msg.status, statusErr = client.entityStatus(context.Background(), entityID)
		}()
		go func() {
			defer wg.Done()
			msg.identity, identityErr = client.entityIdentity(context.Background(), entityID)
		}()
		wg.Wait()
		for _, err := range []error{recErr, statusErr, identityErr} {
			if err != nil {
				msg.err = err
				break
			}
		}
		return msg
	}
}

func replyTick(gen int) tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return replyTickMsg{gen: gen}
	})
}

func sendMessageCmd(client hostClient, entityID, text string) tea.Cmd {
	return func() tea.Msg {
		err := client.sendMessage(context.Background(), entityID, text)
		return writeDoneMsg{op: "message", err: err}
	}
}

func setFocusCmd(client hostClient, entityID string, enabled bool) tea.Cmd {
	return func() tea.Msg {
		err := client.setFocusMode(context.Background(), entityID, enabled)
		return writeDoneMsg{op: "focus-mode", err: err}
	}
}

func sendSnapshotCmd(client hostClient, entityID, scene string) tea.Cmd {
	return func() tea.Msg {
		err := client.sendSnapshot(context.Background(), entityID, scene)
		return writeDoneMsg{op: "snapshot", err: err}
	}
}

func fetchFilesCmd(client hostClient, entityID string, gen int) tea.Cmd {
	return func() tea.Msg {
		files, err := client.envFiles(context.Background(), entityID)
		return filesMsg{gen: gen, files: files, err: err}
	}
}

func fetchFileCmd(client hostClient, entityID, path string, gen int) tea.Cmd {
	return func() tea.Msg {
		content, err := client.envFile(context.Background(), entityID, path)
		return fileBodyMsg{gen: gen, path: path, content: content, err: err}
	}
}

func watchConfig(path string, events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go runConfigWatcher(path, events)
		return <-events
	}
}

func waitConfig(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		if m.quitConfirm {
			break
		}
		switch m.activeTab {
		case tabTranscript:
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			cmds = append(cmds, cmd)
		case tabFiles:
			if m.fileOpen {
				var cmd tea.Cmd
				m.fileView, cmd = m.fileView.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tickMsg:
		cmds = append(cmds, pollRegistryCmd(m.client), tickEvery(m.cfg.pollInterval))

	case registryMsg:
		if msg.err != nil {
			m.statusLine = "registry: " + classifyStreamError(msg.err)
			m.renderPanes()
			break
		}
		m.registry = msg.list
		if m.sess == nil {
			if len(msg.list) == 0 {
				m.statusLine = "no entities on host yet"
			} else {
				cmds = append(cmds, m.switchEntity(m.pickInitialEntity()))
			}
		} else if m.sess.name == "" {
			if known := m.findSummary(m.sess.entityID); known != nil {
				m.sess.name = known.Name
			}
		}
		m.renderPanes()

	case bootstrapMsg:
		if m.sess == nil || msg.gen != m.sess.gen {
			break
		}
		if msg.err != nil {
			m.events.record(logBootstrapFailed, msg.entityID, msg.err.Error())
			m.statusLine = "bootstrap failed: " + classifyStreamError(msg.err)
			m.appendLog("bootstrap failed: " + msg.err.Error())
			m.renderPanes()
			gen := msg.gen
			cmds = append(cmds, tea.Tick(m.cfg.reconnectDelay, func(time.Time) tea.Msg {
				return retryBootstrapMsg{gen: gen}
			}))
			break
		}
		sess := m.sess
		sess.records = msg.records
		sess.lines = reconcile(sess.records)
		sess.identity = msg.identity
		sess.view.position = msg.status.Position
		sess.view.state = msg.status.State
		sess.view.thoughtCount = msg.status.ThoughtCount
		sess.view.focusMode = msg.status.FocusMode
		if sess.name == "" {
			sess.name = msg.status.Name
		}
		m.events.record(logBootstrapOK, sess.entityID, fmt.Sprintf("%d records", len(msg.records)))
		if !sess.booted {
			sess.booted = true
			m.appendLog("observing " + sess.name)
		}
		m.statusLine = "observing " + sess.name
		if sess.channel == nil {
			ch, cmd := openChannel(m.client, sess.entityID)
			sess.channel = ch
			cmds = append(cmds, cmd)
		}
		m.renderPanes()
		m.timeline.GotoBottom()

	case retryBootstrapMsg:
		if m.sess == nil || msg.gen != m.sess.gen || m.sess.booted {
			break
		}
		cmds = append(cmds, bootstrapCmd(m.client, m.sess.entityID, m.cfg.recordLimit, m.sess.gen))

	case streamOpenMsg:
		if m.sess == nil || msg.ch != m.sess.channel {
			break
		}
		msg.ch.state = channelOpen
		msg.ch.lastErr = ""
		m.events.record(logStreamOpen, m.sess.entityID, "")
		m.statusLine = "observing " + m.sess.name + " · live"
		m.renderPanes()
		cmds = append(cmds, waitStream(msg.ch))

	case streamEventMsg:
		if m.sess == nil || msg.ch != m.sess.channel {
			break
		}
		cmds = append(cmds, m.handleStreamEvent(msg)...)
		m.renderPanes()
		cmds = append(cmds, waitStream(msg.ch))

	case streamClosedMsg:
		if m.sess == nil || msg.ch != m.sess.channel {
			break
		}
		if msg.err != nil {
			msg.ch.state = channelError
			msg.ch.lastErr = classifyStreamError(msg.err)
			m.events.record(logStreamError, m.sess.entityID, msg.err.Error())
		} else {
			msg.ch.state = channelClosed
			m.events.record(logStreamClosed, m.sess.entityID, "")
		}
		m.statusLine = "channel " + msg.ch.state.String() + " · retrying in " + m.cfg.reconnectDelay.String()
		m.renderPanes()
		ch := msg.ch
		cmds = append(cmds, tea.Tick(m.cfg.reconnectDelay, func(time.Time) tea.Msg {
			return reconnectMsg{ch: ch}
		}))

	case reconnectMsg:
		// A reconnect timer armed for a previous entity carries that
		// entity's channel pointer and must not respawn it.
		if m.sess == nil || msg.ch != m.sess.channel {
			break
		}
		if msg.ch.state == channelOpen || msg.ch.state == channelConnecting {
			break
		}
		ch, cmd := openChannel(m.client, m.sess.entityID)
		m.sess.channel = ch
		m.statusLine = "reconnecting to " + m.sess.name + "..."
		m.renderPanes()
		cmds = append(cmds, cmd)

	case replyTickMsg:
		if msg.gen != m.replyGen || m.sess == nil || !m.sess.view.conversing {
			break
		}
		m.sess.view.replyRemaining--
		if m.sess.view.replyRemaining <= 0 {
			m.sess.view.conversing = false
			m.sess.view.replyRemaining = 0
		} else {
			cmds = append(cmds, replyTick(msg.gen))
		}
		m.renderPanes()

	case writeDoneMsg:
		if msg.err != nil {
			entity := ""
			if m.sess != nil {
				entity = m.sess.entityID
			}
			m.events.record(logWriteFailed, entity, msg.op+": "+msg.err.Error())
			m.appendLog(msg.op + " dropped: " + classifyStreamError(msg.err))
			m.renderPanes()
		}

	case filesMsg:
		if m.sess == nil || msg.gen != m.sess.gen {
			break
		}
		if msg.err != nil {
			m.statusLine = "files: " + classifyStreamError(msg.err)
		} else {
			m.files = msg.files
			if m.fileIndex >= len(m.files) {
				m.fileIndex = 0
			}
		}
		m.renderPanes()

	case fileBodyMsg:
		if m.sess == nil || msg.gen != m.sess.gen {
			break
		}
		if msg.err != nil {
			m.statusLine = "file read: " + classifyStreamError(msg.err)
			m.renderPanes()
			break
		}
		m.fileOpen = true
		m.fileName = msg.path
		m.fileBody = msg.content
		m.fileView.SetContent(wrapText(msg.content, maxInt(24, m.fileView.Width-2)))
		m.fileView.GotoTop()
		m.renderPanes()

	case configFileMsg:
		m.cfg = applyReload(m.cfg, msg.file)
		m.theme = newTheme(m.cfg.accent)
		m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(m.cfg.accent))
		m.events.record(logConfigReloaded, "", m.cfg.configPath)
		m.appendLog("config reloaded")
		m.renderPanes()
		cmds = append(cmds, waitConfig(m.cfgEvents))

	case tea.KeyMsg:
		return m.handleKey(msg, cmds)
	}

	return m, tea.Batch(cmds...)
}

// handleStreamEvent applies one live frame to the current session and
// returns any follow-up commands it triggers.
func (m *model) handleStreamEvent(msg streamEventMsg) []tea.Cmd {
	sess := m.sess
	var cmds []tea.Cmd

	switch msg.kind {
	case eventCallRecord:
		var rec callRecord
		if err := json.Unmarshal(msg.data, &rec); err != nil {
			break
		}
		sess.records = append(sess.records, rec)
		sess.lines = reconcile(sess.records)
		if m.activeTab != tabTranscript {
			sess.view.unseen = true
		}
		atBottom := m.timeline.AtBottom()
		m.renderPanes()
		if atBottom {
			m.timeline.GotoBottom()
		}

	case eventPosition:
		if pos, ok := decodeEvent[roomPosition](msg.data); ok {
			sess.view.position = pos
		}

	case eventStatus:
		st, ok := decodeEvent[statusEvent](msg.data)
		if !ok {
			break
		}
		prev := sess.view.state
		sess.view.state = st.State
		if st.ThoughtCount > 0 {
			sess.view.thoughtCount = st.ThoughtCount
		}
		if st.State == stateThinking {
			sess.view.alert = false
			if prev == stateIdle {
				cmds = append(cmds, sendSnapshotCmd(m.client, sess.entityID, m.sceneSnapshot()))
			}
		}

	case eventAlert:
		sess.view.alert = true

	case eventActivity:
		if act, ok := decodeEvent[activityEvent](msg.data); ok {
			sess.view.activityType = act.Type
			sess.view.activityDetail = act.Detail
		}

	case eventFocusMode:
		if fm, ok := decodeEvent[focusModeEvent](msg.data); ok {
			sess.view.focusMode = fm.Enabled
		}

	case eventConversation:
		conv, ok := decodeEvent[conversationEvent](msg.data)
		if !ok {
			break
		}
		switch conv.State {
		case "waiting":
			sess.view.conversing = true
			sess.view.replyRemaining = conv.Timeout
			m.replyGen++
			if conv.Timeout > 0 {
				cmds = append(cmds, replyTick(m.replyGen))
			}
			if conv.Message != "" {
				m.appendLog(sess.name + " asks: " + compactSingleLine(conv.Message, 80))
			}
			m.statusLine = sess.name + " is waiting for your reply"
		case "ended":
			sess.view.conversing = false
			sess.view.replyRemaining = 0
			m.replyGen++
			m.statusLine = "observing " + sess.name
		}
	}

	return cmds
}

func (m model) handleKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.quitConfirm {
		switch msg.String() {
		case "y", "Y", "enter":
			return m, tea.Quit
		case "n", "N", "esc":
			m.quitConfirm = false
			m.statusLine = "quit canceled"
			m.renderPanes()
		}
		return m, tea.Batch(cmds...)
	}

	switch msg.String() {
	case "esc":
		if m.activeTab == tabFiles && m.fileOpen {
			m.fileOpen = false
			m.renderPanes()
			return m, tea.Batch(cmds...)
		}
		if m.activeTab != tabTranscript {
			m.setTab(tabTranscript)
			return m, tea.Batch(cmds...)
		}
		m.beginQuitConfirm()
		m.renderPanes()
		return m, tea.Batch(cmds...)
	case "tab":
		next := (m.activeTab + 1) % 3
		cmd := m.setTab(next)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	case "shift+tab":
		next := (m.activeTab + 2) % 3
		cmd := m.setTab(next)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	switch m.activeTab {
	case tabTranscript:
		inputEmpty := strings.TrimSpace(m.input.Value()) == ""
		switch msg.String() {
		case "enter":
			raw := strings.TrimSpace(m.input.Value())
			if raw == "" {
				return m, tea.Batch(cmds...)
			}
			m.input.SetValue("")
			if strings.HasPrefix(raw, "/") {
				if cmd := m.handleSlash(raw); cmd != nil {
					cmds = append(cmds, cmd)
				}
				return m, tea.Batch(cmds...)
			}
			if m.sess == nil || !m.sess.booted {
				m.statusLine = "no entity attached yet"
				m.renderPanes()
				return m, tea.Batch(cmds...)
			}
			m.appendLog("you: " + compactSingleLine(raw, 80))
			m.renderPanes()
			cmds = append(cmds, sendMessageCmd(m.client, m.sess.entityID, raw))
			return m, tea.Batch(cmds...)
		case "pgup", "ctrl+b":
			m.timeline.LineUp(8)
			return m, tea.Batch(cmds...)
		case "pgdown", "ctrl+f":
			m.timeline.LineDown(8)
			return m, tea.Batch(cmds...)
		case "home":
			m.timeline.GotoTop()
			return m, tea.Batch(cmds...)
		case "end":
			m.timeline.GotoBottom()
			return m, tea.Batch(cmds...)
		case "up":
			if inputEmpty {
				m.timeline.LineUp(4)
				return m, tea.Batch(cmds...)
			}
		case "down":
			if inputEmpty {
				m.timeline.LineDown(4)
				return m, tea.Batch(cmds...)
			}
		default:
			if inputEmpty {
				if idx, err := strconv.Atoi(msg.String()); err == nil && idx >= 1 && idx <= len(m.registry) {
					if cmd := m.switchEntity(m.registry[idx-1].ID); cmd != nil {
						cmds = append(cmds, cmd)
					}
					m.renderPanes()
					return m, tea.Batch(cmds...)
				}
			}
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	case tabFiles:
		if m.fileOpen {
			switch msg.String() {
			case "up", "k", "pgup":
				m.fileView.LineUp(4)
			case "down", "j", "pgdown":
				m.fileView.LineDown(4)
			case "home":
				m.fileView.GotoTop()
			case "end":
				m.fileView.GotoBottom()
			case "q":
				m.beginQuitConfirm()
				m.renderPanes()
			}
			return m, tea.Batch(cmds...)
		}
		switch msg.String() {
		case "up", "k":
			m.fileIndex = maxInt(0, m.fileIndex-1)
			m.renderPanes()
		case "down", "j":
			m.fileIndex = minInt(maxInt(0, len(m.files)-1), m.fileIndex+1)
			m.renderPanes()
		case "enter":
			if m.sess != nil && m.fileIndex < len(m.files) {
				cmds = append(cmds, fetchFileCmd(m.client, m.sess.entityID, m.files[m.fileIndex], m.sess.gen))
			}
		case "r":
			if m.sess != nil {
				cmds = append(cmds, fetchFilesCmd(m.client, m.sess.entityID, m.sess.gen))
			}
		case "q":
			m.beginQuitConfirm()
			m.renderPanes()
		}

	case tabHelp:
		if msg.String() == "q" {
			m.beginQuitConfirm()
			m.renderPanes()
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *model) handleSlash(raw string) tea.Cmd {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	tail := parts[1:]

	switch cmd {
	case "/help":
		m.setTab(tabHelp)
		return nil
	case "/quit", "/exit":
		m.beginQuitConfirm()
		m.renderPanes()
		return nil
	case "/files":
		return m.setTab(tabFiles)
	case "/focus":
		if m.sess == nil || !m.sess.booted {
			m.statusLine = "no entity attached yet"
			m.renderPanes()
			return nil
		}
		next := !m.sess.view.focusMode
		m.appendLog("focus mode " + onOff(next) + " requested")
		m.renderPanes()
		return setFocusCmd(m.client, m.sess.entityID, next)
	case "/watch":
		if len(tail) == 0 {
			m.statusLine = "usage: /watch <number|id|name>"
			m.renderPanes()
			return nil
		}
		target := m.resolveEntity(tail[0])
		if target == "" {
			m.statusLine = "unknown entity: " + tail[0]
			m.renderPanes()
			return nil
		}
		cmd := m.switchEntity(target)
		m.renderPanes()
		return cmd
	case "/refresh":
		m.statusLine = "refreshing..."
		m.renderPanes()
		cmds := []tea.Cmd{pollRegistryCmd(m.client)}
		if m.sess != nil {
			cmds = append(cmds, bootstrapCmd(m.client, m.sess.entityID, m.cfg.recordLimit, m.sess.gen))
		}
		return tea.Batch(cmds...)
	default:
		m.statusLine = "unknown command: " + cmd
		m.renderPanes()
		return nil
	}
}

// switchEntity retires the current session and starts a fresh one for
// entityID. Switching to the entity already on screen is a no-op.
func (m *model) switchEntity(entityID string) tea.Cmd {
	if m.sess != nil && m.sess.entityID == entityID {
		return nil
	}
	if m.sess != nil {
		m.sess.teardown()
	}
	m.replyGen++
	m.nextGen++
	sess := &session{gen: m.nextGen, entityID: entityID}
	if known := m.findSummary(entityID); known != nil {
		sess.name = known.Name
	}
	m.sess = sess
	m.files = nil
	m.fileIndex = 0
	m.fileOpen = false
	m.fileName = ""
	m.fileBody = ""
	if sess.name != "" {
		m.statusLine = "loading " + sess.name + "..."
	} else {
		m.statusLine = "loading " + entityID + "..."
	}
	return bootstrapCmd(m.client, entityID, m.cfg.recordLimit, sess.gen)
}

func (m *model) pickInitialEntity() string {
	if m.cfg.entityID != "" {
		if id := m.resolveEntity(m.cfg.entityID); id != "" {
			return id
		}
		m.appendLog("entity not found: " + m.cfg.entityID + ", falling back to first")
	}
	return m.registry[0].ID
}

// resolveEntity accepts a registry ordinal, an exact id, or an exact
// name and returns the entity id, or "" when nothing matches.
func (m *model) resolveEntity(token string) string {
	if idx, err := strconv.Atoi(token); err == nil && idx >= 1 && idx <= len(m.registry) {
		return m.registry[idx-1].ID
	}
	for _, e := range m.registry {
		if e.ID == token {
			return e.ID
		}
	}
	for _, e := range m.registry {
		if strings.EqualFold(e.Name, token) {
			return e.ID
		}
	}
	return ""
}

func (m *model) findSummary(entityID string) *entitySummary {
	for i := range m.registry {
		if m.registry[i].ID == entityID {
			return &m.registry[i]
		}
	}
	return nil
}

func (m *model) setTab(tab tabID) tea.Cmd {
	m.activeTab = tab
	var cmd tea.Cmd
	if tab == tabTranscript {
		m.input.Focus()
		if m.sess != nil {
			m.sess.view.unseen = false
		}
	} else {
		m.input.Blur()
	}
	if tab == tabFiles && m.files == nil && m.sess != nil && m.sess.booted {
		cmd = fetchFilesCmd(m.client, m.sess.entityID, m.sess.gen)
	}
	m.renderPanes()
	return cmd
}

func (m *model) beginQuitConfirm() {
	m.quitConfirm = true
	m.statusLine = "quit rockpool?"
}

func (m *model) appendLog(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), compactSingleLine(trimmed, 200)))
	if len(m.logs) > 50 {
		m.logs = m.logs[len(m.logs)-50:]
	}
}
