package modelscmder

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ollama-go/cmd/ollamactl/cliconfig"
	"github.com/papercomputeco/ollama-go/pkg/llm"
)

const modelsLongDesc string = `List the models available on the server.

With --running, lists the models currently loaded in memory instead.

Examples:
  ollamactl models
  ollamactl models --running --host http://gpu-box:11434`

const modelsShortDesc string = "List models"

type modelsCommander struct {
	flags   *cliconfig.Flags
	running bool
	now     func() time.Time
}

func NewModelsCmd(flags *cliconfig.Flags) *cobra.Command {
	cmder := &modelsCommander{flags: flags, now: time.Now}

	cmd := &cobra.Command{
		Use:          "models",
		Aliases:      []string{"ls"},
		Short:        modelsShortDesc,
		SilenceUsage: true,
		Long:         modelsLongDesc,
		Args:         cobra.NoArgs,
		RunE:         func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.running, "running", false, "List models loaded in memory")

	return cmd
}

func (c *modelsCommander) run(ctx context.Context, cmd *cobra.Command) error {
	_, client, log, err := c.flags.Setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if c.running {
		resp, err := client.ListRunningModels(ctx)
		if err != nil {
			return fmt.Errorf("could not list running models: %w", err)
		}
		return writeRunning(cmd.OutOrStdout(), resp.Models, c.now())
	}

	resp, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("could not list models: %w", err)
	}
	return writeModels(cmd.OutOrStdout(), resp.Models)
}

func writeModels(out io.Writer, models []llm.ModelInfo) error {
	tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tSIZE\tPARAMS\tQUANT")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.Name, shortDigest(m.Digest), formatBytes(m.Size),
			m.Details.ParameterSize, m.Details.QuantizationLevel)
	}
	return tw.Flush()
}

func writeRunning(out io.Writer, models []llm.RunningModel, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tSIZE\tPROCESSOR\tUNTIL")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.Name, shortDigest(m.Digest), formatBytes(m.Size),
			processor(m), until(m.ExpiresAt, now))
	}
	return tw.Flush()
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

func formatBytes(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// processor reports how much of the model sits in GPU memory.
func processor(m llm.RunningModel) string {
	switch {
	case m.Size == 0:
		return "-"
	case m.SizeVRAM == 0:
		return "100% CPU"
	case m.SizeVRAM >= m.Size:
		return "100% GPU"
	}
	gpu := m.SizeVRAM * 100 / m.Size
	return fmt.Sprintf("%d%%/%d%% CPU/GPU", 100-gpu, gpu)
}

func until(expires, now time.Time) string {
	if expires.IsZero() {
		return "forever"
	}
	d := expires.Sub(now).Round(time.Second)
	if d <= 0 {
		return "expiring"
	}
	return d.String()
}
