package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/textinput"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"memscan/internal/codec"
	"memscan/internal/config"
	"memscan/internal/logging"
	"memscan/internal/memscan/styles"
	"memscan/internal/proc"
	"memscan/internal/proclist"
	"memscan/internal/scan"
	"memscan/internal/ui/colorize"
	"memscan/internal/ui/hexdump"
)

type screen int

const (
	screenPickProcess screen = iota
	screenPickType
	screenMenu
	screenInput
	screenScanning
	screenResults
	screenMemView
)

type inputKind int

const (
	inputNewScan inputKind = iota
	inputNextScan
	inputEditValue
	inputEditAddr
)

// scanProgress is shared between the scan goroutine and the render
// loop; the spinner tick reads it on every frame.
type scanProgress struct {
	regions atomic.Int64
	bytes   atomic.Uint64
	matches atomic.Int64
}

func (p *scanProgress) reset() {
	p.regions.Store(0)
	p.bytes.Store(0)
	p.matches.Store(0)
}

// Message types
type processesMsg struct {
	entries []proclist.Entry
	all     bool
	err     error
}

type attachedMsg struct {
	target *proc.Target
	name   string
	err    error
}

type scanDoneMsg struct {
	store *scan.MatchStore
	err   error
}

type writeDoneMsg struct {
	addr uint64
	err  error
}

type memViewMsg struct {
	base uint64
	data []byte
	err  error
}

type procItem struct {
	entry proclist.Entry
}

func (i procItem) Title() string {
	return fmt.Sprintf("%s (pid %d)", i.entry.Name, i.entry.Pid)
}

func (i procItem) Description() string {
	return fmt.Sprintf("%s, %.1f MB resident", i.entry.User, float64(i.entry.RSS)/(1<<20))
}

func (i procItem) FilterValue() string { return i.entry.Name }

type kindItem struct {
	kind codec.Kind
}

func (i kindItem) Title() string { return i.kind.String() }

func (i kindItem) Description() string {
	return fmt.Sprintf("%d byte(s)", i.kind.Size())
}

func (i kindItem) FilterValue() string { return i.kind.String() }

type matchItem struct {
	m scan.Match
}

func (i matchItem) Title() string       { return fmt.Sprintf("0x%012x  =  %s", i.m.Addr, i.m.Value) }
func (i matchItem) Description() string { return "" }
func (i matchItem) FilterValue() string { return fmt.Sprintf("%x", i.m.Addr) }

type model struct {
	screen    screen
	prevInput inputKind

	procList    list.Model
	typeList    list.Model
	resultsList list.Model
	viewport    viewport.Model
	memView     viewport.Model
	input       textinput.Model
	spinner     spinner.Model

	cfg     *config.Config
	logger  *logging.LoggerCloser
	session *scan.Session
	target  *proc.Target
	name    string // target process name, when known

	prog          *scanProgress
	cancelScan    context.CancelFunc
	pendingAttach int
	editAddr      uint64
	showAll       bool
	status        string
	width         int
	height        int
}

// NewModel builds the TUI. With pid zero the session starts at the
// process picker; otherwise it attaches immediately.
func NewModel(pid int, cfg *config.Config) model {
	delegate := list.NewDefaultDelegate()

	procs := list.New([]list.Item{}, delegate, 80, 24)
	procs.Title = "Choose a process (a: toggle system processes)"
	procs.SetShowStatusBar(false)
	procs.SetFilteringEnabled(true)
	procs.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)

	kinds := list.New(kindItems(), delegate, 80, 24)
	kinds.Title = "Choose a data type"
	kinds.SetShowStatusBar(false)
	kinds.SetFilteringEnabled(false)

	results := list.New([]list.Item{}, delegate, 80, 24)
	results.Title = "Matches"
	results.SetShowStatusBar(false)
	results.SetFilteringEnabled(true)

	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	mv := viewport.New()
	mv.SetWidth(80)
	mv.SetHeight(24)

	ti := textinput.New()
	ti.Placeholder = "value"

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	scr := screenPickProcess
	if pid > 0 {
		scr = screenPickType
	}

	m := model{
		screen:      scr,
		procList:    procs,
		typeList:    kinds,
		resultsList: results,
		viewport:    vp,
		memView:     mv,
		input:       ti,
		spinner:     s,
		cfg:         cfg,
		logger:      logging.NewTUILogger(),
		session:     scan.NewSession(codec.Int32),
		prog:        &scanProgress{},
		width:       80,
		height:      24,
	}

	if pid > 0 {
		m.pendingAttach = pid
	}
	return m
}

func kindItems() []list.Item {
	items := make([]list.Item, 0, len(codec.Kinds()))
	for _, k := range codec.Kinds() {
		items = append(items, kindItem{kind: k})
	}
	return items
}

func (m model) Init() tea.Cmd {
	if m.pendingAttach > 0 {
		return attachCmd(m.pendingAttach)
	}
	return loadProcessesCmd(false)
}

// Commands

func loadProcessesCmd(all bool) tea.Cmd {
	return func() tea.Msg {
		entries, err := proclist.List(all)
		return processesMsg{entries: entries, all: all, err: err}
	}
}

func attachCmd(pid int) tea.Cmd {
	return func() tea.Msg {
		target, err := proc.Open(pid)
		if err != nil {
			return attachedMsg{err: err}
		}
		name := fmt.Sprintf("pid %d", pid)
		if entries, lerr := proclist.List(true); lerr == nil {
			for _, e := range entries {
				if int(e.Pid) == pid {
					name = e.Name
					break
				}
			}
		}
		return attachedMsg{target: target, name: name}
	}
}

func initialScanCmd(ctx context.Context, session *scan.Session, target *proc.Target, value string, cfg *config.Config, prog *scanProgress) tea.Cmd {
	return func() tea.Msg {
		store, err := session.InitialScan(ctx, target, target, value,
			scan.WithChunkSize(cfg.ChunkSize),
			scan.WithWorkers(cfg.Workers),
			scan.WithAllRegions(cfg.ScanAllRegions),
			scan.WithProgress(func(p scan.Progress) {
				prog.regions.Store(int64(p.Regions))
				prog.bytes.Store(p.Bytes)
				prog.matches.Store(int64(p.Matches))
			}),
		)
		return scanDoneMsg{store: store, err: err}
	}
}

func nextScanCmd(ctx context.Context, session *scan.Session, target *proc.Target, value string) tea.Cmd {
	return func() tea.Msg {
		store, err := session.NextScan(ctx, target, value)
		return scanDoneMsg{store: store, err: err}
	}
}

func writeValueCmd(session *scan.Session, target *proc.Target, addr uint64, value string, verify bool) tea.Cmd {
	return func() tea.Msg {
		var opts []scan.WriteOption
		if verify {
			opts = append(opts, scan.WithVerify())
		}
		err := scan.Write(target, addr, value, session.Kind(), opts...)
		return writeDoneMsg{addr: addr, err: err}
	}
}

func readMemCmd(target *proc.Target, addr uint64) tea.Cmd {
	return func() tea.Msg {
		// A little context either side of the candidate.
		base := addr &^ 0xf
		if base >= 0x40 {
			base -= 0x40
		}
		buf := make([]byte, 0x100)
		if _, err := target.ReadAt(base, buf); err != nil {
			// Retry with just the candidate's own line.
			base = addr &^ 0xf
			buf = buf[:0x10]
			if _, err := target.ReadAt(base, buf); err != nil {
				return memViewMsg{err: err}
			}
		}
		return memViewMsg{base: base, data: buf}
	}
}

// Update

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case processesMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("process list failed: %v", msg.err)
			return m, nil
		}
		m.showAll = msg.all
		items := make([]list.Item, 0, len(msg.entries))
		for _, e := range msg.entries {
			items = append(items, procItem{entry: e})
		}
		m.procList.SetItems(items)
		return m, nil

	case attachedMsg:
		if msg.err != nil {
			m.status = attachFailure(msg.err)
			m.screen = screenPickProcess
			m.logger.Error("attach failed", "error", msg.err)
			return m, loadProcessesCmd(m.showAll)
		}
		m.target = msg.target
		m.name = msg.name
		m.status = ""
		m.screen = screenPickType
		m.logger.Info("attached", "pid", msg.target.Pid(), "name", msg.name)
		return m, nil

	case scanDoneMsg:
		m.cancelScan = nil
		if msg.err != nil {
			switch {
			case errors.Is(msg.err, scan.ErrCancelled):
				m.status = "scan cancelled, results discarded"
			case errors.Is(msg.err, codec.ErrInvalidValue):
				m.status = msg.err.Error()
			default:
				m.status = fmt.Sprintf("scan failed: %v", msg.err)
			}
			m.screen = screenMenu
			m.updateMenu()
			return m, nil
		}
		m.status = fmt.Sprintf("scan #%d done: %d match(es)", m.session.Generation(), msg.store.Count())
		m.logger.Info("scan done", "generation", m.session.Generation(), "matches", msg.store.Count())
		m.refreshResults()
		if msg.store.Count() > 0 && msg.store.Count() <= 100 {
			m.screen = screenResults
		} else {
			m.screen = screenMenu
			m.updateMenu()
		}
		return m, nil

	case writeDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("write to 0x%x failed: %v", msg.addr, msg.err)
		} else {
			m.status = fmt.Sprintf("wrote new value at 0x%x", msg.addr)
		}
		m.logger.Info("write", "addr", fmt.Sprintf("0x%x", msg.addr), "error", msg.err)
		m.screen = screenMenu
		m.updateMenu()
		return m, nil

	case memViewMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("memory view failed: %v", msg.err)
			m.screen = screenResults
			return m, nil
		}
		dump := hexdump.Dump(msg.data, msg.base)
		m.memView.SetContent(colorize.Hexdump(dump))
		m.memView.GotoTop()
		m.screen = screenMemView
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		if m.screen == screenScanning {
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.memView.SetWidth(msg.Width)
			m.memView.SetHeight(msg.Height - 2)
			m.procList.SetWidth(msg.Width)
			m.procList.SetHeight(msg.Height - 2)
			m.typeList.SetWidth(msg.Width)
			m.typeList.SetHeight(msg.Height - 2)
			m.resultsList.SetWidth(msg.Width)
			m.resultsList.SetHeight(msg.Height - 2)
			m.updateMenu()
		}

	case tea.KeyMsg:
		if handled, nm, c := m.handleKey(msg); handled {
			return nm, c
		}
	}

	switch m.screen {
	case screenPickProcess:
		m.procList, cmd = m.procList.Update(msg)
	case screenPickType:
		m.typeList, cmd = m.typeList.Update(msg)
	case screenResults:
		m.resultsList, cmd = m.resultsList.Update(msg)
	case screenInput:
		m.input, cmd = m.input.Update(msg)
	case screenMemView:
		m.memView, cmd = m.memView.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (bool, model, tea.Cmd) {
	key := msg.String()

	// Never steal keys from an active filter prompt.
	filtering := (m.screen == screenPickProcess && m.procList.FilterState() == list.Filtering) ||
		(m.screen == screenResults && m.resultsList.FilterState() == list.Filtering)
	if filtering {
		if key == "ctrl+c" {
			return true, m, m.quit()
		}
		return false, m, nil
	}

	switch key {
	case "ctrl+c":
		return true, m, m.quit()
	}

	switch m.screen {
	case screenPickProcess:
		switch key {
		case "q":
			return true, m, m.quit()
		case "a":
			return true, m, loadProcessesCmd(!m.showAll)
		case "enter":
			item, ok := m.procList.SelectedItem().(procItem)
			if !ok {
				return true, m, nil
			}
			m.status = fmt.Sprintf("attaching to %s...", item.entry.Name)
			return true, m, attachCmd(int(item.entry.Pid))
		}

	case screenPickType:
		switch key {
		case "q":
			return true, m, m.quit()
		case "enter":
			item, ok := m.typeList.SelectedItem().(kindItem)
			if !ok {
				return true, m, nil
			}
			if item.kind != m.session.Kind() {
				m.session.SetKind(item.kind)
				m.refreshResults()
			}
			m.screen = screenMenu
			m.updateMenu()
			return true, m, nil
		}

	case screenMenu:
		switch key {
		case "q":
			return true, m, m.quit()
		case "n":
			if m.target == nil {
				m.status = "still attaching to the target, try again in a moment"
				m.updateMenu()
				return true, m, nil
			}
			return true, m.promptFor(inputNewScan), nil
		case "x":
			if m.session.State() != scan.StateFiltering {
				m.status = "no scan to narrow; start a new scan first"
				m.updateMenu()
				return true, m, nil
			}
			return true, m.promptFor(inputNextScan), nil
		case "v":
			if m.session.Store().Count() == 0 {
				m.status = "no matches to show"
				m.updateMenu()
				return true, m, nil
			}
			m.screen = screenResults
			return true, m, nil
		case "e":
			if m.target == nil {
				m.status = "still attaching to the target, try again in a moment"
				m.updateMenu()
				return true, m, nil
			}
			return true, m.promptFor(inputEditAddr), nil
		case "t":
			m.screen = screenPickType
			return true, m, nil
		case "r":
			m.session.Reset()
			m.refreshResults()
			m.status = "session reset"
			m.updateMenu()
			return true, m, nil
		}

	case screenInput:
		switch key {
		case "esc":
			m.input.Blur()
			m.screen = screenMenu
			m.updateMenu()
			return true, m, nil
		case "enter":
			return m.submitInput()
		}

	case screenScanning:
		if key == "esc" && m.cancelScan != nil {
			m.cancelScan()
			return true, m, nil
		}

	case screenResults:
		switch key {
		case "q", "esc":
			m.screen = screenMenu
			m.updateMenu()
			return true, m, nil
		case "enter":
			item, ok := m.resultsList.SelectedItem().(matchItem)
			if !ok {
				return true, m, nil
			}
			m.editAddr = item.m.Addr
			return true, m.promptFor(inputEditValue), nil
		case "h":
			item, ok := m.resultsList.SelectedItem().(matchItem)
			if !ok {
				return true, m, nil
			}
			return true, m, readMemCmd(m.target, item.m.Addr)
		}

	case screenMemView:
		switch key {
		case "q", "esc":
			m.screen = screenResults
			return true, m, nil
		}
	}

	return false, m, nil
}

func (m model) promptFor(kind inputKind) model {
	m.prevInput = kind
	m.input.SetValue("")
	switch kind {
	case inputEditAddr:
		m.input.Placeholder = "address (hex, e.g. 0x7ffe12345678)"
	case inputEditValue:
		m.input.Placeholder = fmt.Sprintf("new %s value for 0x%x", m.session.Kind(), m.editAddr)
	default:
		m.input.Placeholder = fmt.Sprintf("%s value", m.session.Kind())
	}
	m.input.Focus()
	m.screen = screenInput
	return m
}

func (m model) submitInput() (bool, model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return true, m, nil
	}
	m.input.Blur()

	// The attach command resolves asynchronously; until it lands the
	// target is nil and must not reach the engine.
	if m.target == nil {
		m.status = "still attaching to the target, try again in a moment"
		m.screen = screenMenu
		m.updateMenu()
		return true, m, nil
	}

	switch m.prevInput {
	case inputNewScan:
		m.prog.reset()
		ctx, cancel := context.WithCancel(context.Background())
		m.cancelScan = cancel
		m.screen = screenScanning
		m.status = ""
		m.logger.Info("initial scan", "type", m.session.Kind().String(), "value", text)
		return true, m, tea.Batch(
			initialScanCmd(ctx, m.session, m.target, text, m.cfg, m.prog),
			m.spinner.Tick,
		)

	case inputNextScan:
		m.screen = screenScanning
		m.status = ""
		m.logger.Info("narrowing scan", "value", text)
		return true, m, tea.Batch(
			nextScanCmd(context.Background(), m.session, m.target, text),
			m.spinner.Tick,
		)

	case inputEditAddr:
		addr, err := parseAddr(text)
		if err != nil {
			m.status = err.Error()
			m.screen = screenMenu
			m.updateMenu()
			return true, m, nil
		}
		m.editAddr = addr
		return true, m.promptFor(inputEditValue), nil

	case inputEditValue:
		return true, m, writeValueCmd(m.session, m.target, m.editAddr, text, m.cfg.VerifyWrites)
	}
	return true, m, nil
}

func (m model) quit() tea.Cmd {
	if m.cancelScan != nil {
		m.cancelScan()
	}
	if m.target != nil {
		m.target.Close()
	}
	m.logger.Close()
	return tea.Quit
}

func (m *model) refreshResults() {
	matches := m.session.Store().Matches()
	items := make([]list.Item, 0, len(matches))
	for _, mt := range matches {
		items = append(items, matchItem{m: mt})
	}
	m.resultsList.SetItems(items)
	m.resultsList.Title = fmt.Sprintf("Matches (%d)", len(matches))
	m.updateMenu()
}

func (m *model) updateMenu() {
	var b strings.Builder
	b.WriteString("# memscan\n\n")
	if m.target != nil {
		fmt.Fprintf(&b, "**Target:** %s (pid %d)\n\n", m.name, m.target.Pid())
	}
	fmt.Fprintf(&b, "**Type:** `%s`  •  **State:** %s", m.session.Kind(), m.session.State())
	if gen := m.session.Generation(); gen > 0 {
		fmt.Fprintf(&b, " (scan #%d)", gen)
	}
	fmt.Fprintf(&b, "  •  **Matches:** %d\n\n", m.session.Store().Count())
	if m.status != "" {
		fmt.Fprintf(&b, "> %s\n\n", m.status)
	}
	b.WriteString(`## Actions

- ` + "`n`" + ` new scan (sweeps the whole process)
- ` + "`x`" + ` next scan (narrows current matches by a new value)
- ` + "`v`" + ` view matches
- ` + "`e`" + ` edit memory at an address
- ` + "`t`" + ` change data type (starts the session over)
- ` + "`r`" + ` reset the session
- ` + "`q`" + ` quit
`)

	rendered := b.String()
	if renderer := styles.MarkdownRenderer(m.width); renderer != nil {
		if out, err := renderer.Render(rendered); err == nil {
			rendered = out
		}
	}
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}

// View

func (m model) View() string {
	var content string
	switch m.screen {
	case screenPickProcess:
		content = m.procList.View()
	case screenPickType:
		content = m.typeList.View()
	case screenResults:
		content = m.resultsList.View()
	case screenMemView:
		content = m.memView.View()
	case screenInput:
		content = fmt.Sprintf("\n  %s\n\n  %s\n", m.inputTitle(), m.input.View())
	case screenScanning:
		content = fmt.Sprintf("\n  %s scanning... %d region(s), %.1f MB, %d match(es) so far\n\n  esc to cancel\n",
			m.spinner.View(),
			m.prog.regions.Load(),
			float64(m.prog.bytes.Load())/(1<<20),
			m.prog.matches.Load(),
		)
	default:
		content = m.viewport.View()
	}

	menu := m.menuBar()
	return content + "\n" + menu
}

func (m model) inputTitle() string {
	switch m.prevInput {
	case inputNewScan:
		return fmt.Sprintf("New scan: enter the current %s value", m.session.Kind())
	case inputNextScan:
		return fmt.Sprintf("Next scan: enter the value it changed to (%s)", m.session.Kind())
	case inputEditAddr:
		return "Edit: enter the target address"
	default:
		return fmt.Sprintf("Edit: enter the new value for 0x%x", m.editAddr)
	}
}

func (m model) menuBar() string {
	var text string
	switch m.screen {
	case screenPickProcess:
		text = " Enter: attach • a: toggle system • /: filter • q: quit "
	case screenPickType:
		text = " Enter: choose type • q: quit "
	case screenMenu:
		text = " n: new scan • x: next • v: view • e: edit • t: type • r: reset • q: quit "
	case screenInput:
		text = " Enter: confirm • Esc: back "
	case screenScanning:
		text = " Esc: cancel scan "
	case screenResults:
		text = " Enter: edit • h: memory view • /: filter • Esc: menu "
	case screenMemView:
		text = " Esc: back to matches "
	}

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Background(lipgloss.Color("235"))
	return style.Render(text)
}

func attachFailure(err error) string {
	switch {
	case errors.Is(err, proc.ErrAccessDenied):
		return "access denied; run memscan as root/administrator"
	case errors.Is(err, proc.ErrNoSuchProcess):
		return "that process is gone"
	default:
		return fmt.Sprintf("attach failed: %v", err)
	}
}
