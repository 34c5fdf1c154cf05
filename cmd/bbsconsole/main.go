// Command bbsconsole is the sysop shell the §6 UI contract describes as
// an external collaborator: a bubbletea TUI that dials cmd/bbsd's
// consolebridge socket, renders per-line status from the event stream,
// and issues commands back. Grounded on the teacher's
// internal/configtool/nodes package (NodeStatusDisplay/WhoOnlineDisplay),
// cut down from its five display styles/sort modes/colour schemes to the
// one table the UI contract actually needs.
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/robwilkins/ftnbbs/internal/consolebridge"
	"github.com/robwilkins/ftnbbs/internal/events"
)

var tableColumns = []table.Column{
	{Title: "Line", Width: 4},
	{Title: "State", Width: 10},
	{Title: "Peer", Width: 20},
	{Title: "Transfer", Width: 8},
	{Title: "Activity", Width: 24},
}

func newLineTable() table.Model {
	t := table.New(
		table.WithColumns(tableColumns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true).Foreground(lipgloss.Color("15")).BorderBottom(true)
	s.Selected = s.Selected.Background(lipgloss.Color("4")).Foreground(lipgloss.Color("15")).Bold(false)
	t.SetStyles(s)
	return t
}

func main() {
	socket := flag.String("socket", "/tmp/bbsd-console.sock", "unix socket bbsd's consolebridge listens on")
	flag.Parse()

	client, err := consolebridge.Dial(*socket)
	if err != nil {
		log.Fatalf("bbsconsole: %v", err)
	}
	defer client.Close()

	m := newModel(client)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("bbsconsole: %v", err)
	}
}

// eventMsg and errMsg wrap the blocking consolebridge.Client.Recv loop
// into the tea.Cmd idiom.
type eventMsg events.Event
type errMsg struct{ err error }

func waitForEvent(client *consolebridge.Client) tea.Cmd {
	return func() tea.Msg {
		ev, err := client.Recv()
		if err != nil {
			return errMsg{err}
		}
		return eventMsg(ev)
	}
}

// lineState is the console's local reconstruction of one line's
// observable state, built up purely from the events the core emits —
// the console itself holds no line registry of its own.
type lineState struct {
	id             int
	connected      bool
	peer           string
	boundRealname  string
	activity       string
	transferActive bool
}

func (l lineState) statusText() string {
	switch {
	case !l.connected:
		return "idle"
	case l.transferActive:
		return "transfer"
	case l.boundRealname != "":
		return "online"
	default:
		return "connecting"
	}
}

type model struct {
	client *consolebridge.Client

	lines   map[int]*lineState
	lineIDs []int
	table   table.Model

	logLines []string

	calls  int
	uptime time.Duration

	acceptingConns bool
	chatPager      bool

	width, height int
	err           error
}

func newModel(client *consolebridge.Client) *model {
	return &model{
		client:         client,
		lines:          make(map[int]*lineState),
		table:          newLineTable(),
		acceptingConns: true,
	}
}

// refreshRows rebuilds the table's rows from the current line states,
// preserving the cursor position (by line id, not row index, since
// rows can be inserted as new lines register).
func (m *model) refreshRows() {
	selectedID := m.selectedID()
	rows := make([]table.Row, len(m.lineIDs))
	for i, id := range m.lineIDs {
		l := m.lines[id]
		rows[i] = table.Row{
			fmt.Sprintf("%d", id),
			l.statusText(),
			truncate(displayPeer(l), 20),
			onoff(l.transferActive),
			truncate(l.activity, 24),
		}
	}
	m.table.SetRows(rows)
	for i, id := range m.lineIDs {
		if id == selectedID {
			m.table.SetCursor(i)
			break
		}
	}
}

func (m *model) Init() tea.Cmd {
	return waitForEvent(m.client)
}

func (m *model) lineAt(id int) *lineState {
	l, ok := m.lines[id]
	if !ok {
		l = &lineState{id: id}
		m.lines[id] = l
		m.lineIDs = append(m.lineIDs, id)
		sort.Ints(m.lineIDs)
	}
	return l
}

func (m *model) appendLog(format string, args ...any) {
	m.logLines = append(m.logLines, fmt.Sprintf("%s  "+format, append([]any{time.Now().Format("15:04:05")}, args...)...))
	if n := len(m.logLines); n > 200 {
		m.logLines = m.logLines[n-200:]
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.applyEvent(events.Event(msg))
		m.refreshRows()
		return m, waitForEvent(m.client)

	case errMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) applyEvent(ev events.Event) {
	switch ev.Kind {
	case events.LineRegistered:
		m.lineAt(ev.Line)
		m.appendLog("line %d registered", ev.Line)
	case events.LineConnected:
		l := m.lineAt(ev.Line)
		l.connected = true
		l.peer = ev.Text
		m.appendLog("line %d connected from %s", ev.Line, ev.Text)
	case events.LineDisconnected:
		l := m.lineAt(ev.Line)
		*l = lineState{id: ev.Line}
		m.appendLog("line %d disconnected", ev.Line)
	case events.LineUserBound:
		l := m.lineAt(ev.Line)
		l.boundRealname = ev.Text
		m.appendLog("line %d: %s logged on", ev.Line, ev.Text)
	case events.LineUserUnbound:
		l := m.lineAt(ev.Line)
		l.boundRealname = ""
		m.appendLog("line %d: user unbound", ev.Line)
	case events.LineActivity:
		l := m.lineAt(ev.Line)
		l.activity = ev.Text
	case events.TransferActive:
		l := m.lineAt(ev.Line)
		l.transferActive = ev.Bool
		m.appendLog("line %d transfer %s", ev.Line, onoff(ev.Bool))
	case events.BoardStatus:
		var calls, uptime int
		fmt.Sscanf(ev.Text, "calls=%d uptime=%d", &calls, &uptime)
		m.calls = calls
		m.uptime = time.Duration(uptime) * time.Second
	}
}

func onoff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "down", "k", "j", "pgup", "pgdown", "home", "end":
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	case "d":
		if id := m.selectedID(); id >= 0 {
			m.client.Send(events.Command{Kind: events.CmdDisconnectLine, Line: id})
			m.appendLog("sent: disconnect line %d", id)
		}
	case "v":
		if id := m.selectedID(); id >= 0 {
			m.client.Send(events.Command{Kind: events.CmdViewLine, Line: id})
			m.appendLog("sent: view line %d", id)
		}
	case "l":
		if id := m.selectedID(); id >= 0 {
			m.client.Send(events.Command{Kind: events.CmdLogonLine, Line: id})
			m.appendLog("sent: logon line %d", id)
		}
	case "a":
		m.acceptingConns = !m.acceptingConns
		m.client.Send(events.Command{Kind: events.CmdSetAcceptingNewConns, Bool: m.acceptingConns})
		m.appendLog("set accepting new connections: %s", onoff(m.acceptingConns))
	case "p":
		m.chatPager = !m.chatPager
		m.client.Send(events.Command{Kind: events.CmdSetChatPager, Bool: m.chatPager})
		m.appendLog("set chat pager: %s", onoff(m.chatPager))
	}
	return m, nil
}

func (m *model) selectedID() int {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.lineIDs) {
		return -1
	}
	return m.lineIDs[i]
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")).Width(80)
	statusStyle = lipgloss.NewStyle().Background(lipgloss.Color("8")).Foreground(lipgloss.Color("15"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	logStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

func (m *model) View() string {
	if m.err != nil {
		return fmt.Sprintf("bbsconsole: lost connection to bbsd: %v\n", m.err)
	}

	width := m.width
	if width < 80 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(headerStyle.Width(width).Render(" bbsd sysop console") + "\n\n")

	if len(m.lineIDs) == 0 {
		b.WriteString("(no lines registered yet)\n")
	} else {
		b.WriteString(m.table.View() + "\n")
	}

	b.WriteString("\n")
	logStart := 0
	if n := len(m.logLines); n > 10 {
		logStart = n - 10
	}
	for _, line := range m.logLines[logStart:] {
		b.WriteString(logStyle.Render(line) + "\n")
	}

	status := fmt.Sprintf(" Calls: %d | Uptime: %s | Accepting: %s | Chat pager: %s ",
		m.calls, m.uptime.Truncate(time.Second), onoff(m.acceptingConns), onoff(m.chatPager))
	b.WriteString("\n" + statusStyle.Width(width).Render(status) + "\n")
	b.WriteString(helpStyle.Render("j/k move  d=disconnect  v=view  l=logon  a=toggle accepting  p=toggle chat pager  q=quit"))

	return b.String()
}

func displayPeer(l *lineState) string {
	if l.boundRealname != "" {
		return l.boundRealname
	}
	return l.peer
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
