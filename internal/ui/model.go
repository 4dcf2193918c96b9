package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/chat"
	"ragchat/internal/models"
)

type FocusState int

const (
	FocusSidebar FocusState = iota
	FocusChat
)

type inputMode int

const (
	modeMessage inputMode = iota
	modeRename
)

type operation string

const (
	opRefresh operation = "refresh history"
	opLoad    operation = "load conversation"
	opSend    operation = "send message"
	opDelete  operation = "delete conversation"
	opRename  operation = "rename conversation"
	opNew     operation = "new conversation"
)

// StateMsg carries a store snapshot into the program
type StateMsg chat.State

// NavigateMsg is sent when the store opens a new conversation
type NavigateMsg struct {
	Path string
}

// opDoneMsg reports the outcome of a store operation
type opDoneMsg struct {
	op  operation
	err error
}

// Model represents the main application state
type Model struct {
	viewport     viewport.Model
	textarea     textarea.Model
	spinner      spinner.Model
	convList     list.Model
	markdown     *glamour.TermRenderer
	store        *chat.Store
	navigate     func(path string)
	state        chat.State
	path         string
	pending      int
	status       string
	mode         inputMode
	renameID     string
	ready        bool
	focus        FocusState
	width        int
	height       int
	sidebarWidth int
}

// NewModel creates a new UI model over store. navigate is handed to the
// store and should feed a NavigateMsg back into the program.
func NewModel(store *chat.Store, navigate func(path string)) *Model {
	ta := textarea.New()
	ta.Placeholder = "Ask a question..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(50, 20)
	vp.SetContent(welcomeText())

	convList := list.New(nil, list.NewDefaultDelegate(), 30, 20)
	convList.Title = "Conversations"
	convList.SetShowStatusBar(false)
	convList.SetFilteringEnabled(false)
	convList.SetShowHelp(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = LoadingStyle

	return &Model{
		textarea:     ta,
		viewport:     vp,
		spinner:      sp,
		convList:     convList,
		store:        store,
		navigate:     navigate,
		state:        store.Snapshot(),
		focus:        FocusChat,
		sidebarWidth: 30,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.refresh())
}

func (m Model) refresh() tea.Cmd {
	return m.run(opRefresh, func(ctx context.Context) error {
		return m.store.RefreshHistory(ctx)
	})
}

// Update handles UI events and state changes
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		clCmd tea.Cmd
		spCmd tea.Cmd
		cmds  []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chatWidth := msg.Width - m.sidebarWidth - 2
		chatHeight := msg.Height - 7

		if !m.ready {
			m.viewport = viewport.New(chatWidth, chatHeight)
			m.ready = true
		} else {
			m.viewport.Width = chatWidth
			m.viewport.Height = chatHeight
		}
		m.textarea.SetWidth(chatWidth - 2)
		m.convList.SetSize(m.sidebarWidth-2, chatHeight+4)
		if r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(chatWidth-6),
		); err == nil {
			m.markdown = r
		}
		m.updateViewport()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.mode == modeRename {
				m.endRename()
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyTab:
			if m.focus == FocusSidebar {
				m.focus = FocusChat
				m.textarea.Focus()
			} else {
				m.focus = FocusSidebar
				m.textarea.Blur()
			}
			return m, nil
		case tea.KeyCtrlN:
			m.endRename()
			m.path = ""
			m.focus = FocusChat
			m.textarea.Focus()
			return m, m.run(opNew, func(context.Context) error {
				m.store.NewConversation()
				return nil
			})
		case tea.KeyCtrlD:
			if selected, ok := m.convList.SelectedItem().(models.Summary); ok && m.focus == FocusSidebar {
				return m, m.run(opDelete, func(ctx context.Context) error {
					return m.store.DeleteConversation(ctx, selected.ID)
				})
			}
		case tea.KeyCtrlR:
			if selected, ok := m.convList.SelectedItem().(models.Summary); ok && m.focus == FocusSidebar {
				m.mode = modeRename
				m.renameID = selected.ID
				m.textarea.Placeholder = "New title for " + selected.Name
				m.textarea.SetValue(selected.Name)
				m.focus = FocusChat
				m.textarea.Focus()
				return m, nil
			}
		case tea.KeyEnter:
			if m.focus == FocusSidebar {
				// Open selected conversation
				if selected, ok := m.convList.SelectedItem().(models.Summary); ok {
					m.path = chat.ChatPath(selected.ID)
					m.focus = FocusChat
					m.textarea.Focus()
					return m, m.run(opLoad, func(ctx context.Context) error {
						return m.store.LoadConversation(ctx, selected.ID)
					})
				}
				return m, nil
			}

			text := m.textarea.Value()
			if m.mode == modeRename {
				id := m.renameID
				m.endRename()
				return m, m.run(opRename, func(ctx context.Context) error {
					return m.store.RenameConversation(ctx, id, text)
				})
			}
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.pending++
			m.status = ""
			m.updateViewport()
			return m, m.run(opSend, func(ctx context.Context) error {
				return m.store.SendMessage(ctx, text, m.navigate)
			})
		}

	case StateMsg:
		m.state = chat.State(msg)
		m.updateConversationList()
		m.updateViewport()

	case NavigateMsg:
		m.path = msg.Path

	case opDoneMsg:
		if msg.op == opSend && m.pending > 0 {
			m.pending--
		}
		if msg.op == opRefresh && errors.Is(msg.err, chat.ErrSuperseded) {
			// a local edit landed while the list was loading
			return m, m.refresh()
		}
		m.status = statusFor(msg)
		m.updateViewport()

	case spinner.TickMsg:
		m.spinner, spCmd = m.spinner.Update(msg)
		if m.pending > 0 {
			m.updateViewport()
		}
		return m, spCmd
	}

	// Update child components
	if m.focus == FocusChat {
		m.textarea, tiCmd = m.textarea.Update(msg)
	}
	if m.focus == FocusSidebar {
		m.convList, clCmd = m.convList.Update(msg)
	}
	m.viewport, vpCmd = m.viewport.Update(msg)

	cmds = append(cmds, tiCmd, vpCmd, clCmd)
	return m, tea.Batch(cmds...)
}

// run executes a store operation off the UI goroutine. State changes reach
// the program through the store subscription, not through the result.
func (m Model) run(op operation, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(context.Background())}
	}
}

// statusFor decides what an operation outcome shows in the status line.
// Send and load failures are already visible in the transcript.
func statusFor(msg opDoneMsg) string {
	if msg.err == nil || errors.Is(msg.err, chat.ErrSuperseded) {
		return ""
	}
	switch msg.op {
	case opSend, opLoad:
		return ""
	default:
		return fmt.Sprintf("Could not %s: %v", msg.op, msg.err)
	}
}

func (m *Model) endRename() {
	m.mode = modeMessage
	m.renameID = ""
	m.textarea.Reset()
	m.textarea.Placeholder = "Ask a question..."
}

func (m *Model) updateConversationList() {
	items := make([]list.Item, len(m.state.History))
	for i, conv := range m.state.History {
		items[i] = conv
	}
	m.convList.SetItems(items)

	if m.state.HistoryStale {
		m.convList.Title = "Conversations (offline)"
	} else {
		m.convList.Title = "Conversations"
	}

	// Select current conversation in list
	for i, conv := range m.state.History {
		if conv.ID == m.state.ChatID {
			m.convList.Select(i)
			break
		}
	}
}

func (m *Model) updateViewport() {
	var content string
	if len(m.state.Messages) == 0 {
		content = welcomeText()
	} else {
		content = renderTranscript(m.state.Messages, m.markdown)
	}

	if m.pending > 0 {
		content += MessageStyle.Render(m.spinner.View()+LoadingStyle.Render(" Assistant is thinking...")) + "\n"
	}

	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m Model) header() string {
	switch {
	case m.state.ChatID == "":
		return "ragchat · new conversation"
	case m.path != "":
		return "ragchat · " + m.path
	default:
		return "ragchat · " + chat.ChatPath(m.state.ChatID)
	}
}

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	// Create sidebar
	sidebarContent := m.convList.View()
	var sidebar string
	if m.focus == FocusSidebar {
		sidebar = SidebarFocusedStyle.Width(m.sidebarWidth).Height(m.height - 1).Render(sidebarContent)
	} else {
		sidebar = SidebarStyle.Width(m.sidebarWidth).Height(m.height - 1).Render(sidebarContent)
	}

	// Create chat area
	chatWidth := m.width - m.sidebarWidth - 2
	chatHeader := TitleStyle.Width(chatWidth).Render(m.header())
	chatArea := ChatStyle.Width(chatWidth).Render(
		fmt.Sprintf("%s\n%s\n%s\n%s", chatHeader, m.viewport.View(), m.textarea.View(), StatusStyle.Render(m.status)),
	)

	// Combine sidebar and chat area
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, chatArea)
}
