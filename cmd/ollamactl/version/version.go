package versioncmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ollama-go/cmd/ollamactl/cliconfig"
)

const versionShortDesc string = "Print the client and server versions"

// Version is set at build time with -ldflags "-X ...versioncmder.Version=v1.2.3".
var Version = "dev"

type versionCommander struct {
	flags *cliconfig.Flags
}

func NewVersionCmd(flags *cliconfig.Flags) *cobra.Command {
	cmder := &versionCommander{flags: flags}

	return &cobra.Command{
		Use:          "version",
		Short:        versionShortDesc,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}
}

func (c *versionCommander) run(ctx context.Context, cmd *cobra.Command) error {
	fmt.Fprintf(cmd.OutOrStdout(), "ollamactl %s\n", Version)

	_, client, log, err := c.flags.Setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	v, err := client.Version(ctx)
	if err != nil {
		return fmt.Errorf("could not reach server at %s: %w", client.BaseURL(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "server %s (%s)\n", v, client.BaseURL())
	return nil
}
