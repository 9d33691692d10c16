package model

import (
	"fmt"
	"time"
)

// CommandType names the mutating operation recorded in a history entry.
type CommandType string

const (
	CommandCreate          CommandType = "CREATE"
	CommandUpdate          CommandType = "UPDATE"
	CommandDelete          CommandType = "DELETE"
	CommandTransferRequest CommandType = "TRANSFER_REQUEST"
	CommandTransferApprove CommandType = "TRANSFER_APPROVE"
	CommandTransferReject  CommandType = "TRANSFER_REJECT"
	CommandTransferCancel  CommandType = "TRANSFER_CANCEL"

	// CommandServerTransferApprove records the materialisation of an
	// automatic approval by whichever flow next touched the resource.
	CommandServerTransferApprove CommandType = "SERVER_TRANSFER_APPROVE"
)

// ParseCommandType validates a client-issuable command name.
func ParseCommandType(s string) (CommandType, error) {
	switch c := CommandType(s); c {
	case CommandCreate, CommandUpdate, CommandDelete, CommandTransferRequest,
		CommandTransferApprove, CommandTransferReject, CommandTransferCancel:
		return c, nil
	}
	return "", Parameter("unknown command %q", s)
}

// HistoryEntry is the immutable audit record of one committed revision.
type HistoryEntry struct {
	ID         string      `json:"id"`
	Resource   ResourceRef `json:"resource"`
	Name       string      `json:"name"`
	Client     string      `json:"client"`
	Superuser  bool        `json:"superuser,omitempty"`
	Command    CommandType `json:"command"`
	CommitTime time.Time   `json:"commit_time"`
	Revision   int64       `json:"revision"`
}

// RevisionRef returns the revision this entry produced.
func (h HistoryEntry) RevisionRef() RevisionRef {
	return RevisionRef{Resource: h.Resource, Revision: h.Revision}
}

// HistoryID returns the ordered identifier of the entry for a revision.
// Zero padding makes lexical order equal numeric order.
func HistoryID(revision int64) string {
	return fmt.Sprintf("%019d", revision)
}
