package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/ollama-go/pkg/llm"
	"github.com/papercomputeco/ollama-go/pkg/stream"
)

const (
	inputHeight  = 1
	statusHeight = 1
)

// chunkMsg carries one streamed fragment of the reply.
type chunkMsg struct {
	Chunk stream.Chunk[llm.ChatResponse]
}

// doneMsg carries the final record of one reply.
type doneMsg struct {
	Done stream.Done[llm.ChatResponse]
}

// toolResultMsg carries the output of a tool the model called.
type toolResultMsg struct {
	Message llm.Message
}

// sendDoneMsg signals that a message and all its tool rounds are finished.
type sendDoneMsg struct {
	Err error
}

// tuiModel is the full screen chat session.
type tuiModel struct {
	Input    textinput.Model
	Viewport viewport.Model

	ctx     context.Context
	session *session

	// transcript holds rendered, finished entries. thinking and answer
	// hold the reply that is still streaming.
	transcript []string
	thinking   string
	answer     string
	calls      []llm.ToolCall

	running bool
	cancel  context.CancelFunc
	msgCh   chan tea.Msg
	doneCh  chan error
	ready   bool
	err     error
}

func newTUIModel(ctx context.Context, s *session) tuiModel {
	input := textinput.New()
	input.Placeholder = "Send a message (/help for commands)"
	input.Prompt = s.r.Prompt(llm.RoleUser)
	input.Focus()

	return tuiModel{Input: input, ctx: ctx, session: s}
}

// runTUI runs m until the user quits or ctx is canceled.
func runTUI(ctx context.Context, m tuiModel, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithInput(in), tea.WithOutput(out))
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

func (m tuiModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case chunkMsg:
		rec := msg.Chunk.Record
		m.thinking += rec.Message.Thinking
		m.answer += msg.Chunk.Text
		m.calls = append(m.calls, rec.Message.ToolCalls...)
		m = m.refresh()
		return m, listen(m.msgCh, m.doneCh)

	case doneMsg:
		rec := msg.Done.Record
		m.thinking += rec.Message.Thinking
		m.calls = append(m.calls, rec.Message.ToolCalls...)
		m.answer = msg.Done.Content
		m = m.finishReply(&rec.Metrics)
		m = m.refresh()
		return m, listen(m.msgCh, m.doneCh)

	case toolResultMsg:
		m.transcript = append(m.transcript, m.session.r.Prompt(llm.RoleTool)+msg.Message.Content)
		m = m.refresh()
		return m, listen(m.msgCh, m.doneCh)

	case sendDoneMsg:
		m = m.finishReply(nil)
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.running = false
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.err = msg.Err
		}
		cmd := m.Input.Focus()
		return m.refresh(), cmd
	}

	if !m.running {
		var cmd tea.Cmd
		m.Input, cmd = m.Input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m tuiModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return m.Viewport.View() + "\n" + m.statusLine() + "\n" + m.Input.View()
}

func (m tuiModel) handleWindowSize(msg tea.WindowSizeMsg) tuiModel {
	height := max(msg.Height-inputHeight-statusHeight, 1)
	if !m.ready {
		m.Viewport = viewport.New(msg.Width, height)
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = height
	}
	m.Input.Width = max(msg.Width-lipgloss.Width(m.Input.Prompt)-1, 1)
	return m.refresh()
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEsc, tea.KeyCtrlD:
		if !m.running {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		return m.submit(text)
	}

	if m.running {
		return m, nil
	}

	var cmds []tea.Cmd
	if msg.Type != tea.KeyRunes {
		var cmd tea.Cmd
		m.Viewport, cmd = m.Viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m tuiModel) submit(text string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")
	m.err = nil

	switch text {
	case "/bye", "/exit":
		return m, tea.Quit
	case "/clear":
		m.session.reset()
		m.transcript = nil
		return m.refresh(), nil
	case "/help", "/?":
		m.transcript = append(m.transcript, replHelp)
		return m.refresh(), nil
	}

	m.transcript = append(m.transcript, m.session.r.Prompt(llm.RoleUser)+text)

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.msgCh = make(chan tea.Msg, 64)
	m.doneCh = make(chan error, 1)
	m.running = true
	m.Input.Blur()

	return m.refresh(), tea.Batch(
		startSend(ctx, m.session, text, m.msgCh, m.doneCh),
		listen(m.msgCh, m.doneCh),
	)
}

// finishReply moves the streamed reply into the transcript. metrics is nil
// when the reply ended without a final record.
func (m tuiModel) finishReply(metrics *llm.Metrics) tuiModel {
	r := m.session.r
	if m.thinking != "" {
		m.transcript = append(m.transcript, r.Thinking(m.thinking))
	}
	if m.answer != "" {
		answer := m.answer
		if r.Markdown() && metrics != nil {
			if out, err := r.Answer(answer); err == nil {
				answer = strings.TrimRight(out, "\n")
			}
		}
		m.transcript = append(m.transcript, r.Prompt(llm.RoleAssistant)+answer)
	}
	for _, call := range m.calls {
		m.transcript = append(m.transcript, r.ToolCall(call))
	}
	if metrics != nil && m.session.stats {
		if st := r.Stats(*metrics); st != "" {
			m.transcript = append(m.transcript, st)
		}
	}
	m.thinking, m.answer, m.calls = "", "", nil
	return m
}

func (m tuiModel) refresh() tuiModel {
	if !m.ready {
		return m
	}
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	return m
}

func (m tuiModel) renderContent() string {
	parts := append([]string(nil), m.transcript...)
	if m.thinking != "" {
		parts = append(parts, m.session.r.Thinking(m.thinking))
	}
	if m.answer != "" {
		parts = append(parts, m.session.r.Prompt(llm.RoleAssistant)+m.answer)
	}
	return strings.Join(parts, "\n")
}

func (m tuiModel) statusLine() string {
	r := m.session.r
	if m.err != nil {
		return r.Error(m.err.Error())
	}
	if m.running {
		return r.Muted(fmt.Sprintf("%s is answering... Ctrl+C to stop", m.session.model))
	}
	return r.Muted("Enter to send, Ctrl+C to quit")
}

// startSend runs one message through the session and reports its events on
// msgCh. msgCh is closed when the message is finished.
func startSend(ctx context.Context, s *session, text string, msgCh chan<- tea.Msg, doneCh chan<- error) tea.Cmd {
	return func() tea.Msg {
		s.emit = func(msg tea.Msg) {
			select {
			case msgCh <- msg:
			case <-ctx.Done():
			}
		}
		err := s.send(ctx, text)
		s.emit = nil
		close(msgCh)
		doneCh <- err
		return nil
	}
}

// listen waits for the next message from ch. Once ch is closed it returns
// the outcome from doneCh.
func listen(ch <-chan tea.Msg, doneCh <-chan error) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return sendDoneMsg{Err: <-doneCh}
		}
		return msg
	}
}
