package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/arq-village/internal/handlers"
	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/chat"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/world"
)

const (
	AgentName       = "Arq"
	AgentGlyph      = '@'
	PlaceHolderText = "Say something to Arq..."
	feedLimit       = 50
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config *ConsoleConfig
	client *http.Client

	world  *handlers.WorldResponse
	agent  *state.AgentState
	router *inference.State

	history  []chatLine
	feed     []string
	lastCopy string

	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool
	streaming    bool

	showQuitModal bool
	progressTick  int
}

type chatLine struct {
	role   string
	text   string
	source string
}

type chatResponseMsg struct {
	response *chat.ChatResponse
	err      error
}

type agentMsg struct {
	agent *state.AgentState
	err   error
}

type routerMsg struct {
	router *handlers.RouterResponse
	err    error
}

type noticeMsg struct {
	text string
	err  error
}

type eventMsg struct {
	event events.Event
}

type streamStatusMsg struct {
	connected bool
	err       error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

// cellStyles colour the map by legend glyph.
var cellStyles = map[rune]lipgloss.Style{
	'~': lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
	'T': lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
	'*': lipgloss.NewStyle().Foreground(lipgloss.Color("211")),
	'=': lipgloss.NewStyle().Foreground(lipgloss.Color("180")),
	'#': lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	'B': lipgloss.NewStyle().Foreground(lipgloss.Color("130")),
	'D': lipgloss.NewStyle().Foreground(lipgloss.Color("130")),
	':': lipgloss.NewStyle().Foreground(lipgloss.Color("223")),
	'.': lipgloss.NewStyle().Foreground(lipgloss.Color("71")),
}

var (
	agentCellStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	locationCellStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client, w *handlers.WorldResponse) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = chat.MaxMessageLength
	ta.SetWidth(50)
	ta.SetHeight(2)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 10)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:       cfg,
		client:       client,
		world:        w,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
	}
}

// mapCells lays location markers and Arq over the map rows. Locations show the
// first letter of their key in upper case.
func mapCells(rows []string, locations []world.Location, agent *state.AgentState) [][]rune {
	cells := make([][]rune, len(rows))
	for r, row := range rows {
		cells[r] = []rune(row)
	}
	set := func(p world.Position, ch rune) {
		if p.Row >= 0 && p.Row < len(cells) && p.Col >= 0 && p.Col < len(cells[p.Row]) {
			cells[p.Row][p.Col] = ch
		}
	}
	for _, l := range locations {
		if l.Key == "" {
			continue
		}
		set(l.Position(), []rune(strings.ToUpper(l.Key[:1]))[0])
	}
	if agent != nil {
		set(agent.Position, AgentGlyph)
	}
	return cells
}

func renderMap(w *handlers.WorldResponse, agent *state.AgentState) string {
	if w == nil {
		return ""
	}
	markers := map[world.Position]bool{}
	for _, l := range w.Locations {
		markers[l.Position()] = true
	}

	var b strings.Builder
	for r, row := range mapCells(w.Rows, w.Locations, agent) {
		for c, ch := range row {
			p := world.Position{Row: r, Col: c}
			switch {
			case agent != nil && p == agent.Position:
				b.WriteString(agentCellStyle.Render(string(ch)))
			case markers[p]:
				b.WriteString(locationCellStyle.Render(string(ch)))
			default:
				if style, ok := cellStyles[ch]; ok {
					b.WriteString(style.Render(string(ch)))
				} else {
					b.WriteRune(ch)
				}
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m ConsoleUI) locationName(key string) string {
	if m.world != nil {
		for _, l := range m.world.Locations {
			if l.Key == key {
				return l.Name
			}
		}
	}
	return key
}

func (m ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("ARQ") + "\n\n")

	if m.agent == nil {
		content.WriteString(loadingStyle.Render("Waiting for Arq...") + "\n\n")
	} else {
		content.WriteString("Where:\n" + m.locationName(m.agent.Location) + "\n\n")
		content.WriteString("Doing:\n")
		if m.agent.Status == state.StatusWalking && m.agent.Destination != "" {
			content.WriteString("walking to " + m.locationName(m.agent.Destination) + "\n\n")
		} else {
			content.WriteString(string(m.agent.Status) + "\n\n")
		}
		content.WriteString("Mood:\n" + string(m.agent.Mood) + "\n\n")
		if m.agent.Thought != "" {
			content.WriteString("Thinking:\n" + wordwrap.String(m.agent.Thought, max(m.metaViewport.Width-2, 10)) + "\n\n")
		}
	}

	content.WriteString("Brain:\n")
	if m.router == nil {
		content.WriteString("unknown\n\n")
	} else {
		content.WriteString(string(m.router.Current))
		if m.router.Current == inference.CurrentLocal && m.router.LocalModel != "" {
			content.WriteString(" (" + m.router.LocalModel + ")")
		}
		content.WriteString("\n\n")
	}

	if !m.streaming {
		content.WriteString(errorStyle.Render("Event stream offline") + "\n\n")
	}

	content.WriteString(titleStyle.Render("ACTIVITY") + "\n\n")
	if len(m.feed) == 0 {
		content.WriteString("Nothing yet.\n")
	}
	for i := len(m.feed) - 1; i >= 0; i-- {
		content.WriteString(wordwrap.String("• "+m.feed[i], max(m.metaViewport.Width-2, 10)) + "\n")
	}
	return content.String()
}

// writeChatContent rebuilds the chat log for the current viewport width.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := max(m.chatViewport.Width-6, 20)

	var content strings.Builder
	content.WriteString(titleStyle.Render("ARQ'S VILLAGE") + "\n")
	content.WriteString("Chat with Arq below. /help lists commands.\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth-6)) + "\n\n")

	for _, line := range m.history {
		switch line.role {
		case chat.ChatRoleAgent:
			content.WriteString(formatAgentResponse(line.text, line.source, chatWidth) + "\n\n")
		case chat.ChatRoleUser:
			content.WriteString(userStyle.Render("You: ") + wordwrap.String(line.text, chatWidth-6) + "\n\n")
		case chat.ChatRoleSystem:
			content.WriteString(line.text + "\n\n")
		}
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func formatAgentResponse(response, source string, width int) string {
	prefix := AgentName + ": "
	wrapped := wordwrap.String(response, width-len(prefix))
	out := speakerStyle.Render(prefix) + agentStyle.Render(wrapped)
	if source != "" && source != string(inference.SourceLocal) {
		out += " " + promptStyle.Render("("+source+")")
	}
	return out
}

func (m *ConsoleUI) addFeed(line string) {
	m.feed = append(m.feed, line)
	if len(m.feed) > feedLimit {
		m.feed = m.feed[len(m.feed)-feedLimit:]
	}
}

// applyEvent folds one stream event into the model. Unknown types are ignored.
func (m *ConsoleUI) applyEvent(e events.Event) {
	switch e.Type {
	case events.EventTypeAgentUpdated:
		var a state.AgentState
		if err := e.Decode(&a); err == nil {
			m.agent = &a
		}
	case events.EventTypeAgentThought:
		var t events.ThoughtData
		if err := e.Decode(&t); err == nil && t.Thought != "" {
			m.addFeed(fmt.Sprintf("%s thinks: %s", AgentName, t.Thought))
		}
	case events.EventTypeActivityLogged:
		var entry activity.Entry
		if err := e.Decode(&entry); err == nil && entry.Kind != activity.KindInference {
			m.addFeed(entry.Timestamp.Local().Format("15:04") + " " + entry.Text)
		}
	case events.EventTypeRouterState:
		var s inference.State
		if err := e.Decode(&s); err == nil {
			m.router = &s
		}
	case events.EventTypeWorldChangeApplied:
		var c world.WorldChange
		if err := e.Decode(&c); err == nil {
			m.applyWorldChange(c)
		}
	}
}

func (m *ConsoleUI) applyWorldChange(c world.WorldChange) {
	if m.world == nil || c.Row < 0 || c.Row >= len(m.world.Rows) {
		return
	}
	var glyph rune
	for g, kind := range m.world.Legend {
		if kind == c.Kind {
			glyph = []rune(g)[0]
			break
		}
	}
	row := []rune(m.world.Rows[c.Row])
	if glyph == 0 || c.Col < 0 || c.Col >= len(row) {
		return
	}
	row[c.Col] = glyph
	m.world.Rows[c.Row] = string(row)
	m.addFeed(fmt.Sprintf("The map changed at (%d,%d): %s", c.Row, c.Col, c.Kind))
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.loadAgent(), m.loadRouter())
}

func (m *ConsoleUI) layout() {
	mapHeight := 0
	if m.world != nil {
		mapHeight = len(m.world.Rows)
	}
	chatWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = max(m.height-mapHeight-8, 3)
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 2
	m.textarea.SetWidth(chatWidth - 4)
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.ready = true
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.textarea.Reset()
			m.loading = true
			m.progressTick = 0
			m.history = append(m.history, chatLine{role: chat.ChatRoleUser, text: input})
			m.writeChatContent()

			return m, tea.Batch(m.sendChatMessage(input), progressTick())
		}

	case chatResponseMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.history = append(m.history, chatLine{role: chat.ChatRoleSystem, text: errorStyle.Render("Error: " + msg.err.Error())})
		} else {
			m.history = append(m.history, chatLine{role: chat.ChatRoleAgent, text: msg.response.Message, source: msg.response.Source})
			m.lastCopy = msg.response.Message
		}
		m.writeChatContent()
		return m, nil

	case agentMsg:
		if msg.err == nil && msg.agent != nil && m.agent == nil {
			m.agent = msg.agent
			m.metaViewport.SetContent(m.writeMetadata())
		}

	case routerMsg:
		if msg.err != nil {
			m.history = append(m.history, chatLine{role: chat.ChatRoleSystem, text: errorStyle.Render("Router: " + msg.err.Error())})
			m.writeChatContent()
		} else if msg.router != nil {
			s := msg.router.State
			m.router = &s
			m.metaViewport.SetContent(m.writeMetadata())
		}

	case noticeMsg:
		text := msg.text
		if msg.err != nil {
			text = errorStyle.Render(msg.err.Error())
		}
		m.history = append(m.history, chatLine{role: chat.ChatRoleSystem, text: text})
		m.writeChatContent()

	case eventMsg:
		m.applyEvent(msg.event)
		m.metaViewport.SetContent(m.writeMetadata())
		return m, nil

	case streamStatusMsg:
		m.streaming = msg.connected
		m.metaViewport.SetContent(m.writeMetadata())
		return m, nil

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))
	m.textarea.Reset()

	var next tea.Cmd
	switch cmd {
	case "/help":
		helpText := `Commands:
• /decide - Ask Arq to pick somewhere to go now
• /refresh - Re-check which brain Arq can use
• /copy - Copy Arq's last reply
• /clear - Clear the chat
• Esc or Ctrl+C - Quit`
		m.history = append(m.history, chatLine{role: chat.ChatRoleSystem, text: titleStyle.Render("Help") + "\n" + helpText})

	case "/decide":
		next = m.decide()

	case "/refresh":
		next = m.refresh()

	case "/copy":
		if m.lastCopy == "" {
			m.history = append(m.history, chatLine{role: chat.ChatRoleSystem, text: promptStyle.Render("Nothing to copy yet.")})
		} else if err := clipboard.WriteAll(m.lastCopy); err != nil {
			m.history = append(m.history, chatLine{role: chat.ChatRoleSystem, text: errorStyle.Render("Copy failed: " + err.Error())})
		} else {
			m.history = append(m.history, chatLine{role: chat.ChatRoleSystem, text: promptStyle.Render("Copied.")})
		}

	case "/clear":
		m.history = nil

	default:
		m.history = append(m.history, chatLine{role: chat.ChatRoleSystem, text: errorStyle.Render("Unknown command " + cmd + ". Try /help.")})
	}

	m.writeChatContent()
	return m, next
}

func (m ConsoleUI) sendChatMessage(message string) tea.Cmd {
	return func() tea.Msg {
		resp, err := sendChat(m.client, m.config.APIBaseURL, message)
		return chatResponseMsg{resp, err}
	}
}

func (m ConsoleUI) loadAgent() tea.Cmd {
	return func() tea.Msg {
		a, err := getAgent(m.client, m.config.APIBaseURL)
		return agentMsg{a, err}
	}
}

func (m ConsoleUI) loadRouter() tea.Cmd {
	return func() tea.Msg {
		r, err := getRouter(m.client, m.config.APIBaseURL)
		return routerMsg{r, err}
	}
}

func (m ConsoleUI) refresh() tea.Cmd {
	return func() tea.Msg {
		r, err := refreshRouter(m.client, m.config.APIBaseURL)
		return routerMsg{r, err}
	}
}

func (m ConsoleUI) decide() tea.Cmd {
	return func() tea.Msg {
		if err := requestDecision(m.client, m.config.APIBaseURL); err != nil {
			return noticeMsg{err: err}
		}
		return noticeMsg{text: promptStyle.Render("Asked Arq to think about where to go.")}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case eventMsg:
		m.applyEvent(msg.event)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Leave the village?"))
	content.WriteString("\n\n")
	content.WriteString("Arq will keep wandering while you're away.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to stay, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 2).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			renderMap(m.world, m.agent),
			m.chatViewport.View(),
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar while Arq is replying.
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30
	}
	usable = min(max(usable, 10), 80)

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
