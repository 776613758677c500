package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/ollama-go/cmd/ollamactl/chat"
	"github.com/papercomputeco/ollama-go/cmd/ollamactl/cliconfig"
	generatecmder "github.com/papercomputeco/ollama-go/cmd/ollamactl/generate"
	mergecmder "github.com/papercomputeco/ollama-go/cmd/ollamactl/merge"
	modelscmder "github.com/papercomputeco/ollama-go/cmd/ollamactl/models"
	pushcmder "github.com/papercomputeco/ollama-go/cmd/ollamactl/push"
	servecmder "github.com/papercomputeco/ollama-go/cmd/ollamactl/serve"
	versioncmder "github.com/papercomputeco/ollama-go/cmd/ollamactl/version"
)

const rootLongDesc string = `ollamactl talks to an Ollama server.

It streams chat and generate responses, lists models, and can run a
recording proxy that stores every exchange as a content-addressed
transcript.

Configuration is read from ~/.config/ollamactl/config.toml, then
OLLAMA_HOST and OLLAMA_API_KEY, then flags.`

func newRootCmd() *cobra.Command {
	flags := &cliconfig.Flags{}

	cmd := &cobra.Command{
		Use:           "ollamactl",
		Short:         "A command line client for Ollama",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.Register(cmd)

	cmd.AddCommand(
		generatecmder.NewGenerateCmd(flags),
		chatcmder.NewChatCmd(flags),
		modelscmder.NewModelsCmd(flags),
		versioncmder.NewVersionCmd(flags),
		servecmder.NewServeCmd(flags),
		pushcmder.NewPushCmd(),
		mergecmder.NewMergeCmd(),
	)

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
