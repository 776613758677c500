package generatecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/cmd/ollamactl/cliconfig"
	"github.com/papercomputeco/ollama-go/cmd/ollamactl/render"
	"github.com/papercomputeco/ollama-go/pkg/llm"
)

const generateLongDesc string = `Generate a completion for a single prompt.

The prompt is taken from the arguments, or from stdin when none are
given. The answer is streamed to stdout as it is produced.

Examples:
  ollamactl generate "Why is the sky blue?"
  echo "Summarize: $(cat notes.txt)" | ollamactl generate -m mistral
  ollamactl generate --no-stream --format json "List three colors as JSON"`

const generateShortDesc string = "Generate a completion for a prompt"

type generateCommander struct {
	flags *cliconfig.Flags

	system   string
	format   string
	noStream bool
	think    bool
	markdown bool
	stats    bool
}

func NewGenerateCmd(flags *cliconfig.Flags) *cobra.Command {
	cmder := &generateCommander{flags: flags}

	cmd := &cobra.Command{
		Use:          "generate [prompt...]",
		Short:        generateShortDesc,
		SilenceUsage: true,
		Long:         generateLongDesc,
		RunE:         func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVar(&cmder.system, "system", "", "System prompt")
	cmd.Flags().StringVar(&cmder.format, "format", "", `Response format ("json")`)
	cmd.Flags().BoolVar(&cmder.noStream, "no-stream", false, "Wait for the full answer instead of streaming")
	cmd.Flags().BoolVar(&cmder.think, "think", false, "Enable thinking for reasoning models")
	cmd.Flags().BoolVar(&cmder.markdown, "render", false, "Render the answer as markdown when writing to a terminal")
	cmd.Flags().BoolVar(&cmder.stats, "stats", false, "Print token counts and timings")

	return cmd
}

func (c *generateCommander) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cfg, client, log, err := c.flags.Setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	req := llm.NewGenerateRequest(cfg.Model, prompt)
	req.System = c.system
	if c.format == "json" {
		req.Format = llm.JSONFormat
	} else if c.format != "" {
		return fmt.Errorf("unsupported --format %q", c.format)
	}
	if c.think {
		req.Think = llm.ThinkOn()
	}

	out := cmd.OutOrStdout()
	r := render.New(out, c.markdown)

	log.Debug("generating",
		zap.String("model", req.Model),
		zap.Int("prompt_len", len(prompt)),
		zap.Bool("stream", !c.noStream),
	)

	var metrics llm.Metrics
	if c.noStream {
		resp, err := client.Generate(ctx, req)
		if err != nil {
			return err
		}
		answer, err := r.Answer(resp.Response)
		if err != nil {
			return err
		}
		fmt.Fprint(out, answer)
		if !strings.HasSuffix(answer, "\n") {
			fmt.Fprintln(out)
		}
		metrics = resp.Metrics
	} else {
		dec, err := client.GenerateStream(ctx, req)
		if err != nil {
			return err
		}
		var observe func(llm.GenerateResponse)
		if c.think {
			observe = func(rec llm.GenerateResponse) {
				if rec.Thinking != "" {
					fmt.Fprint(cmd.ErrOrStderr(), r.Thinking(rec.Thinking))
				}
			}
		}
		done, err := render.Stream(r, out, dec, observe)
		if err != nil {
			return err
		}
		metrics = done.Record.Metrics
	}

	if c.stats {
		if s := r.Stats(metrics); s != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), s)
		}
	}
	return nil
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	prompt := strings.Join(args, " ")
	if prompt == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("could not read prompt from stdin: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("a prompt is required")
	}
	return prompt, nil
}
