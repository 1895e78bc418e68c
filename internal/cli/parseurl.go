package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/peersync/internal/address"
)

// ParsedURL is the result of parse-url.
type ParsedURL struct {
	Address  address.Address `json:"address"`
	Database string          `json:"database"`
	Secure   bool            `json:"secure"`
}

// RenderText implements textRenderer.
func (p ParsedURL) RenderText(w io.Writer) {
	fmt.Fprintf(w, "scheme:   %s\n", p.Address.Scheme)
	fmt.Fprintf(w, "host:     %s\n", p.Address.Host)
	fmt.Fprintf(w, "port:     %d\n", p.Address.Port)
	fmt.Fprintf(w, "path:     %s\n", p.Address.Path)
	fmt.Fprintf(w, "database: %s\n", p.Database)
	fmt.Fprintf(w, "secure:   %t\n", p.Secure)
}

// NewParseURLCommand creates the parse-url command.
func NewParseURLCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse-url <url>",
		Short: "Split a replication URL into server address and database name",
		Long: `Parse a replication URL the way replicate does and print its parts.

Example:
  peersync parse-url ws://localhost:4984/notes
  peersync parse-url blips://sync.example.com/db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			addr, db, err := address.ParseURL(args[0])
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeInvalidArg, "invalid URL", err)
			}
			return out.Success(ParsedURL{Address: addr, Database: db, Secure: addr.IsSecure()})
		},
	}
}
