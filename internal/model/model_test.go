package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestEffectiveStatus_ImplicitApprovalAtDeadline(t *testing.T) {
	td := TransferData{Status: TransferPending, PendingExpiration: t0.Add(120 * time.Hour)}

	assert.Equal(t, TransferPending, td.EffectiveStatus(t0))
	assert.Equal(t, TransferPending, td.EffectiveStatus(t0.Add(120*time.Hour-time.Nanosecond)))
	assert.Equal(t, TransferServerApproved, td.EffectiveStatus(t0.Add(120*time.Hour)))
	assert.Equal(t, TransferServerApproved, td.EffectiveStatus(t0.Add(1000*24*time.Hour)))
}

func TestEffectiveStatus_TerminalStatesUnaffectedByTime(t *testing.T) {
	for _, s := range []TransferStatus{TransferClientRejected, TransferClientCancelled, TransferClientApproved} {
		td := TransferData{Status: s, PendingExpiration: t0}
		assert.Equal(t, s, td.EffectiveStatus(t0.Add(time.Hour)))
	}
	assert.Equal(t, TransferNotPending, TransferData{}.EffectiveStatus(t0))
}

func TestErrorKind_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("load domain: %w", NotFound("domain %q", "example.tld"))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, kind)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsClientError(err))
	assert.Equal(t, 2303, kind.ResultCode())

	_, ok = KindOf(errors.New("disk on fire"))
	assert.False(t, ok)
	assert.False(t, IsClientError(Integrity("two transfer charges")))
}

func TestResultCodesAreDistinct(t *testing.T) {
	seen := map[int]ErrorKind{}
	for _, k := range []ErrorKind{KindNotFound, KindConflict, KindAuthorization, KindInvalidState, KindParameter, KindIntegrity} {
		code := k.ResultCode()
		_, dup := seen[code]
		assert.False(t, dup, "code %d reused by %s", code, k)
		seen[code] = k
	}
}

func TestCanonicalizeDomainName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Example.TLD", want: "example.tld"},
		{in: "example.tld.", want: "example.tld"},
		{in: "bücher.example", want: "xn--bcher-kva.example"},
		{in: "テスト.xn--q9jyb4c", want: "xn--zckzah.xn--q9jyb4c"},
		{in: "tld", wantErr: true},
		{in: "-bad.tld", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalizeDomainName(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsKind(err, KindParameter))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateContactID(t *testing.T) {
	assert.NoError(t, ValidateContactID("jd1234"))
	assert.NoError(t, ValidateContactID("Contact_ID-1"))
	assert.Error(t, ValidateContactID("ab"))
	assert.Error(t, ValidateContactID("has space"))
}

func TestResource_CloneIsDeep(t *testing.T) {
	ref := EntityRef{Kind: KindRecurring, Group: "g", ID: "r1"}
	orig := &Resource{
		Type:     Domain,
		Statuses: []Status{StatusOK},
		Domain: &DomainPayload{
			Contacts:           map[string]string{"admin": "c1"},
			Nameservers:        []string{"ns1.example.tld"},
			AutorenewRecurring: &ref,
		},
		Transfer: TransferData{ServerApprove: ServerApproveEntities{Accept: []EntityRef{ref}}},
	}

	c := orig.Clone()
	c.AddStatus(StatusClientDeleteProhibited)
	c.Domain.Contacts["admin"] = "c2"
	c.Domain.Nameservers[0] = "ns2.example.tld"
	c.Domain.AutorenewRecurring.ID = "r2"
	c.Transfer.ServerApprove.Accept[0].ID = "x"

	assert.Equal(t, []Status{StatusOK}, orig.Statuses)
	assert.Equal(t, "c1", orig.Domain.Contacts["admin"])
	assert.Equal(t, "ns1.example.tld", orig.Domain.Nameservers[0])
	assert.Equal(t, "r1", orig.Domain.AutorenewRecurring.ID)
	assert.Equal(t, "r1", orig.Transfer.ServerApprove.Accept[0].ID)
}

func TestResource_StatusSet(t *testing.T) {
	r := &Resource{}
	r.AddStatus(StatusPendingTransfer)
	r.AddStatus(StatusClientDeleteProhibited)
	r.AddStatus(StatusPendingTransfer)
	assert.Equal(t, []Status{StatusClientDeleteProhibited, StatusPendingTransfer}, r.Statuses)

	r.RemoveStatus(StatusPendingTransfer)
	assert.False(t, r.HasStatus(StatusPendingTransfer))
}

func TestWindow(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(time.Hour)}
	assert.True(t, w.Contains(t0))
	assert.False(t, w.Contains(t0.Add(time.Hour)))
	assert.False(t, w.Open())
	assert.True(t, Window{Start: t0, End: EndOfTime}.Open())
	assert.True(t, w.Overlaps(Window{Start: t0.Add(30 * time.Minute), End: EndOfTime}))
	assert.False(t, w.Overlaps(Window{Start: t0.Add(time.Hour), End: EndOfTime}))
}

func TestHistoryIDOrdersLexically(t *testing.T) {
	assert.Less(t, HistoryID(9), HistoryID(10))
	assert.Less(t, HistoryID(99), HistoryID(100))
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("repo")
	assert.Equal(t, "repo-0001", g.NewID())
	assert.Equal(t, "repo-0002", g.NewID())
}
