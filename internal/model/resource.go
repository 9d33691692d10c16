package model

import (
	"fmt"
	"slices"
	"time"
)

// ResourceType names the three kinds of registry object.
type ResourceType string

const (
	Domain  ResourceType = "domain"
	Contact ResourceType = "contact"
	Host    ResourceType = "host"
)

// ParseResourceType validates a resource type name.
func ParseResourceType(s string) (ResourceType, error) {
	switch t := ResourceType(s); t {
	case Domain, Contact, Host:
		return t, nil
	}
	return "", Parameter("unknown resource type %q", s)
}

// Transferable reports whether resources of type t can change sponsor.
func (t ResourceType) Transferable() bool {
	return t == Domain || t == Contact
}

// Status is an EPP status value.
type Status string

const (
	StatusOK                       Status = "ok"
	StatusClientDeleteProhibited   Status = "clientDeleteProhibited"
	StatusClientUpdateProhibited   Status = "clientUpdateProhibited"
	StatusClientTransferProhibited Status = "clientTransferProhibited"
	StatusServerDeleteProhibited   Status = "serverDeleteProhibited"
	StatusServerUpdateProhibited   Status = "serverUpdateProhibited"
	StatusServerTransferProhibited Status = "serverTransferProhibited"
	StatusPendingTransfer          Status = "pendingTransfer"
	StatusPendingDelete            Status = "pendingDelete"
	StatusLinked                   Status = "linked"
)

// ClientSettable reports whether a registrar may add or remove s itself.
func (s Status) ClientSettable() bool {
	switch s {
	case StatusClientDeleteProhibited, StatusClientUpdateProhibited, StatusClientTransferProhibited:
		return true
	}
	return false
}

// ServerSettable reports whether a superuser may add or remove s.
func (s Status) ServerSettable() bool {
	switch s {
	case StatusServerDeleteProhibited, StatusServerUpdateProhibited, StatusServerTransferProhibited,
		StatusPendingDelete:
		return true
	}
	return s.ClientSettable()
}

// ResourceRef is a non-owning reference to a resource by its internal ID.
type ResourceRef struct {
	Type   ResourceType `json:"type"`
	RepoID string       `json:"repo_id"`
}

func (r ResourceRef) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.RepoID)
}

// Group is the entity group holding the resource, its revisions, its
// history, its billing events and the poll messages about it.
func (r ResourceRef) Group() string {
	return fmt.Sprintf("resource/%s/%s", r.Type, r.RepoID)
}

// IsZero reports whether r refers to nothing.
func (r ResourceRef) IsZero() bool {
	return r.RepoID == ""
}

// RevisionRef identifies one immutable revision of a resource.
type RevisionRef struct {
	Resource ResourceRef `json:"resource"`
	Revision int64       `json:"revision"`
}

func (r RevisionRef) String() string {
	return fmt.Sprintf("%s@%d", r.Resource, r.Revision)
}

// Resource is one revision of a domain, contact or host. Exactly one of the
// payload pointers matching Type is set.
type Resource struct {
	RepoID              string       `json:"repo_id"`
	Type                ResourceType `json:"type"`
	Name                string       `json:"name"`
	Revision            int64        `json:"revision"`
	CreationTime        time.Time    `json:"creation_time"`
	CreationClient      string       `json:"creation_client"`
	LastEppUpdateTime   time.Time    `json:"last_epp_update_time"`
	LastEppUpdateClient string       `json:"last_epp_update_client"`
	DeletionTime        time.Time    `json:"deletion_time"`
	SponsorClient       string       `json:"sponsor_client"`
	Statuses            []Status     `json:"statuses,omitempty"`
	LastTransferTime    time.Time    `json:"last_transfer_time,omitzero"`
	Transfer            TransferData `json:"transfer"`

	Domain  *DomainPayload  `json:"domain,omitempty"`
	Contact *ContactPayload `json:"contact,omitempty"`
	Host    *HostPayload    `json:"host,omitempty"`
}

// Ref returns a reference to r.
func (r *Resource) Ref() ResourceRef {
	return ResourceRef{Type: r.Type, RepoID: r.RepoID}
}

// RevisionRef returns a reference to this revision of r.
func (r *Resource) RevisionRef() RevisionRef {
	return RevisionRef{Resource: r.Ref(), Revision: r.Revision}
}

// ActiveWindow is the interval during which r is not deleted.
func (r *Resource) ActiveWindow() Window {
	return Window{Start: r.CreationTime, End: r.DeletionTime}
}

// IsActive reports whether r exists and is not deleted at t.
func (r *Resource) IsActive(t time.Time) bool {
	return r.ActiveWindow().Contains(t)
}

// HasStatus reports whether s is in r's status set.
func (r *Resource) HasStatus(s Status) bool {
	return slices.Contains(r.Statuses, s)
}

// AddStatus inserts s, keeping the set sorted and free of duplicates.
func (r *Resource) AddStatus(s Status) {
	if r.HasStatus(s) {
		return
	}
	r.Statuses = append(r.Statuses, s)
	slices.Sort(r.Statuses)
}

// RemoveStatus deletes s from the set.
func (r *Resource) RemoveStatus(s Status) {
	r.Statuses = slices.DeleteFunc(r.Statuses, func(x Status) bool { return x == s })
}

// AuthInfo returns the transfer authorization secret of r, if its type has one.
func (r *Resource) AuthInfo() string {
	switch {
	case r.Domain != nil:
		return r.Domain.AuthInfo
	case r.Contact != nil:
		return r.Contact.AuthInfo
	}
	return ""
}

// Clone returns a deep copy of r.
func (r *Resource) Clone() *Resource {
	c := *r
	c.Statuses = slices.Clone(r.Statuses)
	c.Transfer = r.Transfer.Clone()
	if r.Domain != nil {
		d := r.Domain.Clone()
		c.Domain = &d
	}
	if r.Contact != nil {
		p := *r.Contact
		c.Contact = &p
	}
	if r.Host != nil {
		h := *r.Host
		h.InetAddresses = slices.Clone(r.Host.InetAddresses)
		c.Host = &h
	}
	return &c
}

// Successor returns a clone of r stamped as the next revision written by
// client at now.
func (r *Resource) Successor(client string, now time.Time) *Resource {
	next := r.Clone()
	next.Revision = r.Revision + 1
	next.LastEppUpdateTime = now
	next.LastEppUpdateClient = client
	return next
}

// DomainPayload holds domain-specific fields.
type DomainPayload struct {
	TLD                    string            `json:"tld"`
	RegistrationExpiration time.Time         `json:"registration_expiration"`
	Registrant             string            `json:"registrant,omitempty"`
	Contacts               map[string]string `json:"contacts,omitempty"`
	Nameservers            []string          `json:"nameservers,omitempty"`
	AuthInfo               string            `json:"auth_info,omitempty"`
	AutorenewRecurring     *EntityRef        `json:"autorenew_recurring,omitempty"`
}

// Clone returns a deep copy of d.
func (d DomainPayload) Clone() DomainPayload {
	c := d
	if d.Contacts != nil {
		c.Contacts = make(map[string]string, len(d.Contacts))
		for k, v := range d.Contacts {
			c.Contacts[k] = v
		}
	}
	c.Nameservers = slices.Clone(d.Nameservers)
	if d.AutorenewRecurring != nil {
		ref := *d.AutorenewRecurring
		c.AutorenewRecurring = &ref
	}
	return c
}

// ReferencedContacts returns the contact IDs a domain links to, sorted.
func (d DomainPayload) ReferencedContacts() []string {
	var ids []string
	if d.Registrant != "" {
		ids = append(ids, d.Registrant)
	}
	for _, id := range d.Contacts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// ContactPayload holds contact-specific fields.
type ContactPayload struct {
	Email       string `json:"email,omitempty"`
	Voice       string `json:"voice,omitempty"`
	Name        string `json:"name,omitempty"`
	Org         string `json:"org,omitempty"`
	City        string `json:"city,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	AuthInfo    string `json:"auth_info,omitempty"`
}

// HostPayload holds host-specific fields. SuperordinateDomain is empty for
// external hosts.
type HostPayload struct {
	InetAddresses       []string `json:"inet_addresses,omitempty"`
	SuperordinateDomain string   `json:"superordinate_domain,omitempty"`
}
