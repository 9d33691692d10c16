package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/icewiki/nomulus/internal/tld"
)

// NewGetTLDCommand creates the get-tld command.
func NewGetTLDCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get-tld [name...]",
		Short: "Show TLD configuration",
		Long: `Show the configuration of the named TLDs, or list every configured TLD
when no name is given. Any unknown name fails the command.

TLDs are read from the CUE files in --tld-dir.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			reg, err := tld.LoadDir(rootOpts.Config.TLDDir)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load TLDs", err)
			}
			if len(args) == 0 {
				names := reg.Names()
				if out.Format == "json" {
					return out.Success(names)
				}
				return out.Success(strings.Join(names, "\n"))
			}
			tlds := make([]tld.TLD, 0, len(args))
			for _, name := range args {
				t, err := reg.Get(name)
				if err != nil {
					return out.RegistryError(err, nil)
				}
				tlds = append(tlds, t)
			}
			if out.Format == "json" {
				return out.Success(tlds)
			}
			text := make([]string, len(tlds))
			for i, t := range tlds {
				text[i] = describeTLD(t)
			}
			return out.Success(strings.Join(text, "\n\n"))
		},
	}
}

func describeTLD(t tld.TLD) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", t.Name)
	fmt.Fprintf(&b, "  currency:                  %s\n", t.Currency)
	fmt.Fprintf(&b, "  create cost:               %d\n", t.CreateCost)
	fmt.Fprintf(&b, "  transfer cost:             %d\n", t.TransferCost)
	fmt.Fprintf(&b, "  renew cost:                %d\n", t.RenewCost)
	fmt.Fprintf(&b, "  add grace period:          %s\n", t.AddGracePeriod)
	fmt.Fprintf(&b, "  automatic transfer length: %s\n", t.AutomaticTransferLength)
	fmt.Fprintf(&b, "  transfer grace period:     %s", t.TransferGracePeriod)
	return b.String()
}
