package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icewiki/nomulus/internal/billing"
	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/tld"
)

const tldDir = "../tld/testdata/tlds"

// runCLI executes the root command. A non-empty dsn points the command at a
// sqlite database and the test TLDs.
func runCLI(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	args = append(args, "--log-level", "error")
	if dsn != "" {
		args = append(args, "--db-driver", "sqlite3", "--db-dsn", dsn, "--tld-dir", tldDir)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decodeResponse(t *testing.T, out string) response {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

func decodeData[T any](t *testing.T, out string) T {
	t.Helper()
	r := decodeResponse(t, out)
	require.Equal(t, "ok", r.Status, out)
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

func writePayload(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const (
	t0         = "2024-06-01T00:00:00Z"
	t1h        = "2024-06-01T01:00:00Z"
	t2h        = "2024-06-01T02:00:00Z"
	afterTrans = "2024-06-06T01:00:01Z" // past the 120h deadline of a request at t1h
)

// seed creates contact jd1 and domain foo.example sponsored by reg-a.
func seed(t *testing.T) (dsn, dir string) {
	t.Helper()
	dir = t.TempDir()
	dsn = filepath.Join(dir, "registry.db")

	contact := writePayload(t, dir, "contact.yaml", "contact:\n  email: jd@example.test\n  auth_info: c-secret\n")
	domain := writePayload(t, dir, "domain.yaml", `domain:
  period_years: 1
  registrant: jd1
  auth_info: d-secret
`)

	out, err := runCLI(t, dsn, "exec", "CREATE", "contact", "jd1", "--client", "reg-a", "--payload", contact, "--at", t0)
	require.NoError(t, err, out)
	assert.Contains(t, out, "committed")

	out, err = runCLI(t, dsn, "exec", "CREATE", "domain", "foo.example", "--client", "reg-a", "--payload", domain, "--at", t0)
	require.NoError(t, err, out)
	assert.Contains(t, out, `domain "foo.example", sponsor reg-a`)
	return dsn, dir
}

func TestExec_DuplicateCreateIsConflict(t *testing.T) {
	dsn, dir := seed(t)
	contact := writePayload(t, dir, "again.yaml", "contact:\n  email: other@example.test\n")

	out, err := runCLI(t, dsn, "exec", "CREATE", "contact", "jd1", "--client", "reg-b", "--payload", contact, "--at", t1h, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	r := decodeResponse(t, out)
	assert.Equal(t, "error", r.Status)
	require.NotNil(t, r.Error)
	assert.Equal(t, "2302", r.Error.Code)
	assert.Equal(t, "CONFLICT", r.Error.Kind)
}

func TestExec_RejectsUnknownCommand(t *testing.T) {
	dsn, _ := seed(t)
	out, err := runCLI(t, dsn, "exec", "RENEW", "domain", "foo.example", "--client", "reg-a")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [2005 PARAMETER]")
}

func TestExec_RejectsUnknownPayloadField(t *testing.T) {
	dsn, dir := seed(t)
	bad := writePayload(t, dir, "bad.yaml", "colour: blue\n")
	_, err := runCLI(t, dsn, "exec", "UPDATE", "domain", "foo.example", "--client", "reg-a", "--payload", bad)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid payload")
}

func TestExec_RequiresClient(t *testing.T) {
	_, err := runCLI(t, "", "exec", "CREATE", "contact", "jd1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client")
}

func TestLookup(t *testing.T) {
	dsn, _ := seed(t)

	out, err := runCLI(t, dsn, "lookup", "domain", "foo.example", "--at", t1h)
	require.NoError(t, err, out)
	assert.Contains(t, out, "domain foo.example")
	assert.Contains(t, out, "sponsor:  reg-a")
	assert.Contains(t, out, "transfer: NOT_PENDING")

	out, err = runCLI(t, dsn, "lookup", "domain", "foo.example", "--at", "2024-05-31T00:00:00Z", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", decodeResponse(t, out).Error.Kind)

	_, err = runCLI(t, dsn, "lookup", "domain", "foo.example", "--at", "yesterday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTransferLifecycle(t *testing.T) {
	dsn, dir := seed(t)
	auth := writePayload(t, dir, "auth.yaml", "auth_info: d-secret\n")

	out, err := runCLI(t, dsn, "exec", "TRANSFER_REQUEST", "domain", "foo.example", "--client", "reg-b", "--payload", auth, "--at", t1h)
	require.NoError(t, err, out)

	out, err = runCLI(t, dsn, "transfer-query", "domain", "foo.example", "--at", t2h, "--format", "json")
	require.NoError(t, err, out)
	td := decodeData[model.TransferData](t, out)
	assert.Equal(t, model.TransferPending, td.Status)
	assert.Equal(t, "reg-b", td.GainingClient)
	assert.Equal(t, "reg-a", td.LosingClient)

	out, err = runCLI(t, dsn, "transfer-query", "domain", "foo.example", "--at", afterTrans)
	require.NoError(t, err, out)
	assert.Contains(t, out, "SERVER_APPROVED: reg-a -> reg-b")

	out, err = runCLI(t, dsn, "lookup", "domain", "foo.example", "--at", afterTrans, "--format", "json")
	require.NoError(t, err, out)
	res := decodeData[model.Resource](t, out)
	assert.Equal(t, "reg-b", res.SponsorClient)

	out, err = runCLI(t, dsn, "history", "domain", "foo.example", "--at", t2h, "--format", "json")
	require.NoError(t, err, out)
	entries := decodeData[[]model.HistoryEntry](t, out)
	require.Len(t, entries, 2)
	assert.Equal(t, model.CommandCreate, entries[0].Command)
	assert.Equal(t, model.CommandTransferRequest, entries[1].Command)
	assert.Equal(t, "reg-b", entries[1].Client)

	out, err = runCLI(t, dsn, "history", "domain", "foo.example", "--at", t2h)
	require.NoError(t, err, out)
	assert.Equal(t, 2, strings.Count(out, "\n"))

	out, err = runCLI(t, dsn, "charges", "domain", "foo.example", "--at", t2h, "--format", "json")
	require.NoError(t, err, out)
	charges := decodeData[[]billing.Charge](t, out)
	var reasons []model.BillingReason
	for _, c := range charges {
		reasons = append(reasons, c.Reason)
	}
	assert.Contains(t, reasons, model.ReasonCreate)
	assert.Contains(t, reasons, model.ReasonTransfer)

	out, err = runCLI(t, dsn, "poll", "list", "reg-a", "--at", t2h, "--format", "json")
	require.NoError(t, err, out)
	msgs := decodeData[[]model.PollMessage](t, out)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.PollTransferRequested, msgs[0].Type)
}

func TestPollRelayOnce(t *testing.T) {
	dsn, dir := seed(t)
	auth := writePayload(t, dir, "auth.yaml", "auth_info: d-secret\n")
	_, err := runCLI(t, dsn, "exec", "TRANSFER_REQUEST", "domain", "foo.example", "--client", "reg-b", "--payload", auth, "--at", t1h)
	require.NoError(t, err)

	// The relay runs at wall-clock time, long after the deadline, so the
	// request notice and both approval notices are due.
	out, err := runCLI(t, dsn, "poll", "relay", "--once")
	require.NoError(t, err, out)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	var types []model.PollMessageType
	for _, line := range lines {
		var m model.PollMessage
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		types = append(types, m.Type)
	}
	assert.ElementsMatch(t, []model.PollMessageType{
		model.PollTransferRequested, model.PollTransferApproved, model.PollTransferApproved,
	}, types)

	out, err = runCLI(t, dsn, "poll", "list", "reg-a", "--format", "json")
	require.NoError(t, err, out)
	assert.Empty(t, decodeData[[]model.PollMessage](t, out))
}

func TestPollRelay_RejectsInterval(t *testing.T) {
	dsn, _ := seed(t)
	_, err := runCLI(t, dsn, "poll", "relay", "--interval", "0s")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetTLD(t *testing.T) {
	out, err := runCLI(t, "", "get-tld", "--tld-dir", tldDir)
	require.NoError(t, err, out)
	assert.Equal(t, "example\nxn--q9jyb4c\n", out)

	out, err = runCLI(t, "", "get-tld", "EXAMPLE", "xn--q9jyb4c", "--tld-dir", tldDir, "--format", "json")
	require.NoError(t, err, out)
	got := decodeData[[]tld.TLD](t, out)
	require.Len(t, got, 2)
	assert.Equal(t, "example", got[0].Name)
	assert.Equal(t, "USD", got[0].Currency)
	assert.Equal(t, int64(800), got[0].CreateCost)
	assert.Equal(t, "JPY", got[1].Currency)

	out, err = runCLI(t, "", "get-tld", "example", "--tld-dir", tldDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "renew cost:                800")

	_, err = runCLI(t, "", "get-tld", "example", "nope", "--tld-dir", tldDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestOpenApp_MissingTLDDir(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "", "lookup", "domain", "foo.example",
		"--db-dsn", filepath.Join(dir, "r.db"), "--tld-dir", filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load TLDs")
}
