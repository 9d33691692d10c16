package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/icewiki/nomulus/internal/billing"
	"github.com/icewiki/nomulus/internal/model"
)

// ReadOptions holds flags shared by read commands.
type ReadOptions struct {
	*RootOptions
	At string
}

func newReadCommand(rootOpts *RootOptions, use, short, long string, run func(*ReadOptions, *app, model.ResourceType, string, *cobra.Command) error) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:           use + " <type> <name>",
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := model.ParseResourceType(strings.ToLower(args[0]))
			if err != nil {
				return opts.formatter(cmd).RegistryError(err, nil)
			}
			a, err := openApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(opts, a, rt, args[1], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.At, "at", "", "read instant (RFC 3339, default now)")
	return cmd
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	return newReadCommand(rootOpts, "lookup", "Show a resource as of an instant",
		`Show the resource active under a name. With --at, show the resource that
was active at that instant as it stood then.`,
		func(opts *ReadOptions, a *app, rt model.ResourceType, name string, cmd *cobra.Command) error {
			out := opts.formatter(cmd)
			at, err := opts.instant(opts.At)
			if err != nil {
				return err
			}
			var res *model.Resource
			if opts.At == "" {
				res, err = a.engine.LookupActive(cmd.Context(), rt, name, at)
			} else {
				res, err = a.engine.Load(cmd.Context(), rt, name, at)
			}
			if err != nil {
				return out.RegistryError(err, nil)
			}
			if out.Format == "json" {
				return out.Success(res)
			}
			return out.Success(describe(res))
		})
}

func describe(r *model.Resource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s) revision %d\n", r.Type, r.Name, r.RepoID, r.Revision)
	fmt.Fprintf(&b, "  sponsor:  %s\n", r.SponsorClient)
	fmt.Fprintf(&b, "  created:  %s by %s\n", r.CreationTime.Format("2006-01-02T15:04:05Z07:00"), r.CreationClient)
	if len(r.Statuses) > 0 {
		s := make([]string, len(r.Statuses))
		for i, st := range r.Statuses {
			s[i] = string(st)
		}
		fmt.Fprintf(&b, "  statuses: %s\n", strings.Join(s, ", "))
	}
	fmt.Fprintf(&b, "  transfer: %s", r.Transfer.Status)
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return newReadCommand(rootOpts, "history", "List the history of a resource",
		`List the history entries of the resource active under a name (or active
at --at) in commit order.`,
		func(opts *ReadOptions, a *app, rt model.ResourceType, name string, cmd *cobra.Command) error {
			out := opts.formatter(cmd)
			at, err := opts.instant(opts.At)
			if err != nil {
				return err
			}
			res, err := a.engine.Load(cmd.Context(), rt, name, at)
			if err != nil {
				return out.RegistryError(err, nil)
			}
			entries := []model.HistoryEntry{}
			for e, err := range a.engine.History(cmd.Context(), res.Ref()) {
				if err != nil {
					return out.RegistryError(err, nil)
				}
				entries = append(entries, e)
			}
			if out.Format == "json" {
				return out.Success(entries)
			}
			var b strings.Builder
			for i, e := range entries {
				if i > 0 {
					b.WriteByte('\n')
				}
				fmt.Fprintf(&b, "r%d %s %s by %s", e.Revision, e.CommitTime.Format("2006-01-02T15:04:05Z07:00"), e.Command, e.Client)
			}
			return out.Success(b.String())
		})
}

// NewTransferQueryCommand creates the transfer-query command.
func NewTransferQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return newReadCommand(rootOpts, "transfer-query", "Show the transfer data of a resource",
		`Show the most recent transfer of a domain or contact with its status as of
now (or --at). A transfer past its deadline reads as SERVER_APPROVED.`,
		func(opts *ReadOptions, a *app, rt model.ResourceType, name string, cmd *cobra.Command) error {
			out := opts.formatter(cmd)
			at, err := opts.instant(opts.At)
			if err != nil {
				return err
			}
			td, err := a.engine.TransferQuery(cmd.Context(), rt, name, at)
			if err != nil {
				return out.RegistryError(err, nil)
			}
			if out.Format == "json" {
				return out.Success(td)
			}
			return out.Success(fmt.Sprintf("%s: %s -> %s, requested %s, deadline %s",
				td.Status, td.LosingClient, td.GainingClient,
				td.RequestTime.Format("2006-01-02T15:04:05Z07:00"),
				td.PendingExpiration.Format("2006-01-02T15:04:05Z07:00")))
		})
}

// NewChargesCommand creates the charges command.
func NewChargesCommand(rootOpts *RootOptions) *cobra.Command {
	return newReadCommand(rootOpts, "charges", "List the billing events of a resource",
		`List the billing events recorded against a resource with their effective
status as of now (or --at).`,
		func(opts *ReadOptions, a *app, rt model.ResourceType, name string, cmd *cobra.Command) error {
			out := opts.formatter(cmd)
			at, err := opts.instant(opts.At)
			if err != nil {
				return err
			}
			res, err := a.engine.Load(cmd.Context(), rt, name, at)
			if err != nil {
				return out.RegistryError(err, nil)
			}
			charges, err := a.engine.Charges(cmd.Context(), res.Ref(), at)
			if err != nil {
				return out.RegistryError(err, nil)
			}
			if out.Format == "json" {
				if charges == nil {
					charges = []billing.Charge{}
				}
				return out.Success(charges)
			}
			var b strings.Builder
			for i, c := range charges {
				if i > 0 {
					b.WriteByte('\n')
				}
				fmt.Fprintf(&b, "%-12s %-10s %-8s %-10s %s %d", c.Kind, c.Reason, c.Client, c.Status, c.Cost.Currency, c.Cost.Amount)
			}
			return out.Success(b.String())
		})
}
