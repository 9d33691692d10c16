package flow

import (
	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/transfer"
)

// Command is one client request to mutate a resource.
type Command struct {
	Type         model.CommandType
	ResourceType model.ResourceType
	Name         string
	Client       string
	Superuser    bool
	Payload      Payload
}

// Payload carries the command-specific input. Only the section matching the
// command and resource type is read.
type Payload struct {
	// AuthInfo authorizes a transfer request.
	AuthInfo string `yaml:"auth_info,omitempty"`

	// PeriodYears is the registration period of a domain transfer.
	PeriodYears int `yaml:"period_years,omitempty"`

	Domain  *DomainInput  `yaml:"domain,omitempty"`
	Contact *ContactInput `yaml:"contact,omitempty"`
	Host    *HostInput    `yaml:"host,omitempty"`
	Update  *UpdateInput  `yaml:"update,omitempty"`
}

// DomainInput is the create payload of a domain.
type DomainInput struct {
	PeriodYears int               `yaml:"period_years,omitempty"`
	Registrant  string            `yaml:"registrant,omitempty"`
	Contacts    map[string]string `yaml:"contacts,omitempty"`
	Nameservers []string          `yaml:"nameservers,omitempty"`
	AuthInfo    string            `yaml:"auth_info,omitempty"`
}

// ContactInput is the create payload of a contact.
type ContactInput struct {
	Email             string            `yaml:"email,omitempty"`
	Voice             string            `yaml:"voice,omitempty"`
	Name        string `yaml:"name,omitempty"`
	Org         string `yaml:"org,omitempty"`
	City        string `yaml:"city,omitempty"`
	CountryCode string `yaml:"country_code,omitempty"`
	AuthInfo    string `yaml:"auth_info,omitempty"`
}

// HostInput is the create payload of a host.
type HostInput struct {
	InetAddresses []string `yaml:"inet_addresses,omitempty"`
}

// UpdateInput describes an update. Nil pointers leave fields unchanged.
type UpdateInput struct {
	AddStatuses       []model.Status    `yaml:"add_statuses,omitempty"`
	RemoveStatuses    []model.Status    `yaml:"remove_statuses,omitempty"`
	AuthInfo          *string           `yaml:"auth_info,omitempty"`
	Registrant        *string           `yaml:"registrant,omitempty"`
	AddNameservers    []string          `yaml:"add_nameservers,omitempty"`
	RemoveNameservers []string          `yaml:"remove_nameservers,omitempty"`
	// AddContacts maps role to contact ID. RemoveContacts names roles and is
	// applied first, so a role can be reassigned in one update.
	AddContacts       map[string]string `yaml:"add_contacts,omitempty"`
	RemoveContacts    []string          `yaml:"remove_contacts,omitempty"`
	Email             *string           `yaml:"email,omitempty"`
	Voice             *string           `yaml:"voice,omitempty"`
	AddAddresses      []string          `yaml:"add_addresses,omitempty"`
	RemoveAddresses   []string          `yaml:"remove_addresses,omitempty"`
}

// Stage is a step of one flow invocation.
type Stage string

const (
	StageLoaded     Stage = "LOADED"
	StageAuthorized Stage = "AUTHORIZED"
	StageValidated  Stage = "VALIDATED"
	StageMutated    Stage = "MUTATED"
	StageCommitted  Stage = "COMMITTED"
	StageFailed     Stage = "FAILED"
)

// Result describes a finished invocation. On failure Stage is FAILED and
// FailedAt names the transition that failed.
type Result struct {
	Stage    Stage
	FailedAt Stage
	Revision model.RevisionRef
	Resource *model.Resource
}

func outcomeFor(t model.CommandType) (transfer.Outcome, bool) {
	switch t {
	case model.CommandTransferApprove:
		return transfer.Approve, true
	case model.CommandTransferReject:
		return transfer.Reject, true
	case model.CommandTransferCancel:
		return transfer.Cancel, true
	}
	return "", false
}
