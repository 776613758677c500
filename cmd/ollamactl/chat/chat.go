package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/cmd/ollamactl/cliconfig"
	"github.com/papercomputeco/ollama-go/cmd/ollamactl/render"
	"github.com/papercomputeco/ollama-go/cmd/ollamactl/sqlitepath"
	"github.com/papercomputeco/ollama-go/pkg/llm"
	"github.com/papercomputeco/ollama-go/pkg/merkle"
	"github.com/papercomputeco/ollama-go/pkg/ollama"
	"github.com/papercomputeco/ollama-go/pkg/stream"
)

const chatLongDesc string = `Chat with a model.

With a message argument, sends that one message and exits. Otherwise
starts an interactive session that keeps the conversation history
until /clear or /bye. When stdin is a terminal the session runs
full screen; use --plain for the line-based prompt. Piped input is
always read line by line.

With --record, every exchange is stored in the local transcript
database, where it can later be pushed or merged.

Examples:
  ollamactl chat
  ollamactl chat -m qwen3 --think "What is 17 * 23?"
  ollamactl chat --tools "What time is it?"
  ollamactl chat --record --sqlite ./transcripts.db`

const chatShortDesc string = "Chat with a model"

const replHelp = `Commands:
  /clear  forget the conversation so far
  /bye    leave the session`

type chatCommander struct {
	flags *cliconfig.Flags

	system        string
	useTools      bool
	record        bool
	sqlitePath    string
	markdown      bool
	think         bool
	stats         bool
	maxToolRounds int
	plain         bool

	now func() time.Time
}

func NewChatCmd(flags *cliconfig.Flags) *cobra.Command {
	cmder := &chatCommander{flags: flags, now: time.Now}

	cmd := &cobra.Command{
		Use:          "chat [message...]",
		Short:        chatShortDesc,
		SilenceUsage: true,
		Long:         chatLongDesc,
		RunE:         func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVar(&cmder.system, "system", "", "System prompt")
	cmd.Flags().BoolVar(&cmder.useTools, "tools", false, "Offer the built-in tools (current_time, add) to the model")
	cmd.Flags().BoolVar(&cmder.record, "record", false, "Record the conversation in the transcript database")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the transcript database used by --record")
	cmd.Flags().BoolVar(&cmder.markdown, "render", false, "Render answers as markdown when writing to a terminal")
	cmd.Flags().BoolVar(&cmder.think, "think", false, "Enable thinking for reasoning models")
	cmd.Flags().BoolVar(&cmder.stats, "stats", false, "Print token counts and timings after each answer")
	cmd.Flags().IntVar(&cmder.maxToolRounds, "max-tool-rounds", 5, "Tool call rounds allowed per message")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Use the line-based prompt even when stdin is a terminal")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	cfg, client, log, err := c.flags.Setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	s := &session{
		client:    client,
		r:         render.New(cmd.OutOrStdout(), c.markdown),
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
		model:     cfg.Model,
		system:    c.system,
		stats:     c.stats,
		maxRounds: c.maxToolRounds,
		logger:    log,
	}
	if c.think {
		s.think = llm.ThinkOn()
	}

	if c.useTools {
		for _, t := range builtinTools(c.now) {
			if err := client.RegisterTool(t); err != nil {
				return err
			}
		}
		s.tools = client.Tools().Specs()
	}

	if c.record {
		dbPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
		if err != nil {
			return fmt.Errorf("could not resolve transcript database: %w", err)
		}
		store, err := merkle.NewSQLiteStorer(dbPath)
		if err != nil {
			return fmt.Errorf("could not open transcript database %s: %w", dbPath, err)
		}
		defer store.Close()
		s.store = store
		log.Debug("recording conversation", zap.String("path", dbPath))
	}

	s.reset()

	if len(args) > 0 {
		return s.send(ctx, strings.Join(args, " "))
	}
	if !c.plain && isTerminal(cmd.InOrStdin()) {
		log.Debug("starting full screen session")
		return runTUI(ctx, newTUIModel(ctx, s), cmd.InOrStdin(), cmd.OutOrStdout())
	}
	return s.repl(ctx, cmd.InOrStdin())
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// session is one conversation with the model.
type session struct {
	client *ollama.Client
	store  merkle.Storer
	r      *render.Renderer
	out    io.Writer
	errOut io.Writer
	logger *zap.Logger

	model     string
	system    string
	tools     []llm.Tool
	think     *llm.Think
	stats     bool
	maxRounds int

	history []llm.Message

	// emit, when set, receives stream events and tool results as tea
	// messages instead of them being written to out.
	emit func(tea.Msg)
}

func (s *session) reset() {
	s.history = s.history[:0]
	if s.system != "" {
		s.history = append(s.history, llm.NewMessage(llm.RoleSystem, s.system))
	}
}

func (s *session) repl(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(s.out, s.r.Prompt(llm.RoleUser))
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/bye", "/exit":
			return nil
		case "/clear":
			s.reset()
			fmt.Fprintln(s.out, "Cleared conversation.")
			continue
		case "/help", "/?":
			fmt.Fprintln(s.out, replHelp)
			continue
		}

		if err := s.send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(s.errOut, s.r.Error(err.Error()))
		}
	}
}

// send adds a user message and runs the exchange, including any tool call
// rounds. On failure the history is left as it was before the message.
func (s *session) send(ctx context.Context, text string) error {
	mark := len(s.history)
	s.history = append(s.history, llm.NewMessage(llm.RoleUser, text))

	for round := 0; ; round++ {
		reply, err := s.exchange(ctx)
		if err != nil {
			s.history = s.history[:mark]
			return err
		}
		if len(reply.ToolCalls) == 0 || len(s.tools) == 0 {
			return nil
		}
		if round >= s.maxRounds {
			s.history = s.history[:mark]
			return fmt.Errorf("model still calling tools after %d rounds", s.maxRounds)
		}

		results, err := s.client.RunTools(ctx, reply)
		if err != nil {
			if ctx.Err() != nil {
				s.history = s.history[:mark]
				return ctx.Err()
			}
			s.logger.Warn("tool call failed", zap.Error(err))
		}
		for _, res := range results {
			if s.emit != nil {
				s.emit(toolResultMsg{Message: res})
				continue
			}
			fmt.Fprintln(s.out, s.r.Prompt(llm.RoleTool)+res.Content)
		}
		s.history = append(s.history, results...)
	}
}

// exchange streams one assistant reply to the current history.
func (s *session) exchange(ctx context.Context) (llm.Message, error) {
	req := llm.NewChatRequest(s.model, slices.Clone(s.history)...)
	req.Tools = s.tools
	req.Think = s.think

	dec, err := s.client.ChatStream(ctx, req)
	if err != nil {
		return llm.Message{}, err
	}

	var reply replyBuilder
	var done *stream.Done[llm.ChatResponse]
	if s.emit != nil {
		done, err = s.forward(dec, reply.observe)
	} else {
		fmt.Fprint(s.out, s.r.Prompt(llm.RoleAssistant))
		observe := func(rec llm.ChatResponse) {
			reply.observe(rec)
			if rec.Message.Thinking != "" {
				fmt.Fprint(s.errOut, s.r.Thinking(rec.Message.Thinking))
			}
		}
		done, err = render.Stream(s.r, s.out, dec, observe)
	}
	if err != nil {
		return llm.Message{}, err
	}

	msg := reply.message(done.Content)
	s.history = append(s.history, msg)

	if s.emit == nil {
		for _, call := range msg.ToolCalls {
			fmt.Fprintln(s.out, s.r.ToolCall(call))
		}
		if s.stats {
			if st := s.r.Stats(done.Record.Metrics); st != "" {
				fmt.Fprintln(s.errOut, st)
			}
		}
	}

	if s.store != nil {
		resp := done.Record
		resp.Message = msg
		hash, err := merkle.RecordTurn(ctx, s.store, &llm.ConversationTurn{Request: req, Response: &resp})
		if err != nil {
			s.logger.Warn("failed to record turn", zap.Error(err))
		} else {
			s.logger.Debug("recorded turn", zap.String("hash", hash))
		}
	}

	return msg, nil
}

// forward hands every event of dec to emit and returns the final record.
func (s *session) forward(dec *stream.Decoder[llm.ChatResponse], observe func(llm.ChatResponse)) (*stream.Done[llm.ChatResponse], error) {
	defer dec.Close()

	for ev, err := range dec.All() {
		if err != nil {
			return nil, err
		}

		switch e := ev.(type) {
		case stream.Chunk[llm.ChatResponse]:
			observe(e.Record)
			s.emit(chunkMsg{Chunk: e})
		case stream.Done[llm.ChatResponse]:
			observe(e.Record)
			s.emit(doneMsg{Done: e})
			return &e, nil
		case stream.ErrorEvent:
			return nil, &ollama.ServerError{Message: e.Message}
		}
	}
	return nil, render.ErrIncomplete
}

// replyBuilder collects the parts of a streamed reply that are spread over
// several records.
type replyBuilder struct {
	role      llm.Role
	thinking  strings.Builder
	toolCalls []llm.ToolCall
}

func (b *replyBuilder) observe(rec llm.ChatResponse) {
	if rec.Message.Role != "" {
		b.role = rec.Message.Role
	}
	b.thinking.WriteString(rec.Message.Thinking)
	b.toolCalls = append(b.toolCalls, rec.Message.ToolCalls...)
}

func (b *replyBuilder) message(content string) llm.Message {
	role := b.role
	if role == "" {
		role = llm.RoleAssistant
	}
	return llm.Message{
		Role:      role,
		Content:   content,
		Thinking:  b.thinking.String(),
		ToolCalls: b.toolCalls,
	}
}
