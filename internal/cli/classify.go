package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/peersync/internal/syncerr"
)

// Classification is the result of classify.
type Classification struct {
	Domain           string `json:"domain"`
	Code             int    `json:"code"`
	Message          string `json:"message"`
	Transient        bool   `json:"transient"`
	NetworkDependent bool   `json:"network_dependent"`
}

// RenderText implements textRenderer.
func (c Classification) RenderText(w io.Writer) {
	fmt.Fprintf(w, "%s %d: %s\n", c.Domain, c.Code, c.Message)
	fmt.Fprintf(w, "transient:         %t\n", c.Transient)
	fmt.Fprintf(w, "network-dependent: %t\n", c.NetworkDependent)
}

// ClassifyOptions holds flags for the classify command.
type ClassifyOptions struct {
	*RootOptions
	Domain string
	Code   int
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClassifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Report whether an error is transient or network-dependent",
		Long: `Classify a replication error by domain and code.

A transient error may go away if the replication is retried. A
network-dependent error may go away when network conditions change.

Domains: litecore, posix, sqlite, fleece, network, websocket.

Example:
  peersync classify --domain websocket --code 503
  peersync classify --domain network --code 2 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			domain, err := syncerr.ParseDomain(opts.Domain)
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeInvalidArg, "invalid domain", err)
			}
			if opts.Code == 0 {
				return out.Fail(ExitCommandError, ErrCodeInvalidArg, "code must be non-zero", nil)
			}
			e := syncerr.Error{Domain: domain, Code: opts.Code}
			return out.Success(Classification{
				Domain:           domain.String(),
				Code:             opts.Code,
				Message:          e.Message(),
				Transient:        syncerr.MayBeTransient(e),
				NetworkDependent: syncerr.MayBeNetworkDependent(e),
			})
		},
	}

	cmd.Flags().StringVar(&opts.Domain, "domain", "", "error domain (required)")
	cmd.Flags().IntVar(&opts.Code, "code", 0, "error code (required)")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("code")

	return cmd
}
