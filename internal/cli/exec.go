package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/icewiki/nomulus/internal/flow"
	"github.com/icewiki/nomulus/internal/model"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Client    string
	Superuser bool
	Payload   string
	At        string
}

// ExecResult is the output of a committed command.
type ExecResult struct {
	Revision string          `json:"revision"`
	Resource *model.Resource `json:"resource"`
}

func (r ExecResult) String() string {
	return fmt.Sprintf("committed %s (%s %q, sponsor %s)", r.Revision, r.Resource.Type, r.Resource.Name, r.Resource.SponsorClient)
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <command> <type> <name>",
		Short: "Execute a registry command",
		Long: `Execute one command against a domain, contact or host.

Commands: CREATE, UPDATE, DELETE, TRANSFER_REQUEST, TRANSFER_APPROVE,
TRANSFER_REJECT, TRANSFER_CANCEL. The payload is a YAML file.

Examples:
  registry exec CREATE contact jd1234 --client reg-a --payload contact.yaml
  registry exec TRANSFER_REQUEST domain example.test --client reg-b --payload auth.yaml`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execCommand(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Client, "client", "", "acting registrar (required)")
	cmd.Flags().BoolVar(&opts.Superuser, "superuser", false, "act as a registry superuser")
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "YAML payload file")
	cmd.Flags().StringVar(&opts.At, "at", "", "execution instant (RFC 3339, default now)")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}

func execCommand(opts *ExecOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	typ, err := model.ParseCommandType(strings.ToUpper(args[0]))
	if err != nil {
		return out.RegistryError(err, nil)
	}
	rt, err := model.ParseResourceType(strings.ToLower(args[1]))
	if err != nil {
		return out.RegistryError(err, nil)
	}
	payload, err := readPayload(opts.Payload)
	if err != nil {
		return err
	}
	now, err := opts.instant(opts.At)
	if err != nil {
		return err
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Execute(cmd.Context(), flow.Command{
		Type:         typ,
		ResourceType: rt,
		Name:         args[2],
		Client:       opts.Client,
		Superuser:    opts.Superuser,
		Payload:      payload,
	}, now)
	if err != nil {
		return out.RegistryError(err, map[string]string{"failed_at": string(res.FailedAt)})
	}
	return out.Success(ExecResult{Revision: res.Revision.String(), Resource: res.Resource})
}

func readPayload(path string) (flow.Payload, error) {
	var p flow.Payload
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, WrapExitError(ExitCommandError, "failed to read payload", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return p, WrapExitError(ExitCommandError, "invalid payload", err)
	}
	return p, nil
}
