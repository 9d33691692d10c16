package flow

import (
	"github.com/icewiki/nomulus/internal/index"
	"github.com/icewiki/nomulus/internal/model"
)

const maxRegistrationYears = 10

type createFlow struct{ e *Engine }

func (createFlow) authorize(*flowContext) error { return nil }

func (f createFlow) validate(fc *flowContext) error {
	p := fc.cmd.Payload
	switch fc.cmd.ResourceType {
	case model.Domain:
		if p.Domain == nil {
			return model.Parameter("domain create requires a domain payload")
		}
		if y := p.Domain.PeriodYears; y < 0 || y > maxRegistrationYears {
			return model.Parameter("registration period %d is outside 1..%d years", y, maxRegistrationYears)
		}
		if p.Domain.Registrant == "" {
			return model.Parameter("domain create requires a registrant")
		}
		ids := []string{p.Domain.Registrant}
		for _, id := range p.Domain.Contacts {
			ids = append(ids, id)
		}
		if err := requireContacts(fc, ids); err != nil {
			return err
		}
		if _, err := canonicalNameservers(fc, p.Domain.Nameservers); err != nil {
			return err
		}
	case model.Contact:
		if p.Contact == nil {
			return model.Parameter("contact create requires a contact payload")
		}
		if p.Contact.Email == "" {
			return model.Parameter("contact create requires an email address")
		}
	case model.Host:
		if p.Host != nil {
			if _, err := canonicalAddresses(p.Host.InetAddresses); err != nil {
				return err
			}
		}
		return f.validateSuperordinate(fc)
	}
	return nil
}

// validateSuperordinate decides whether the host is subordinate to a domain
// in this registry. Subordinate hosts need glue addresses and must be created
// by the domain's sponsor; external hosts must not carry addresses.
func (createFlow) validateSuperordinate(fc *flowContext) error {
	var addrs []string
	if fc.cmd.Payload.Host != nil {
		addrs = fc.cmd.Payload.Host.InetAddresses
	}
	parent := model.ParentDomain(fc.cmd.Name)
	var ref model.ResourceRef
	var ok bool
	if parent != "" {
		var err error
		if ref, ok, err = index.Lookup(fc.ctx, fc.tx, model.Domain, parent, fc.now); err != nil {
			return err
		}
	}
	if !ok {
		if len(addrs) > 0 {
			return model.Parameter("external host %q must not have inet addresses", fc.cmd.Name)
		}
		return nil
	}
	domain, err := loadResource(fc.ctx, fc.tx, ref)
	if err != nil {
		return err
	}
	if !fc.cmd.Superuser && domain.SponsorClient != fc.cmd.Client {
		return model.Unauthorized("client %q does not sponsor superordinate domain %q", fc.cmd.Client, parent)
	}
	if len(addrs) == 0 {
		return model.Parameter("subordinate host %q requires inet addresses", fc.cmd.Name)
	}
	fc.superordinate = parent
	return nil
}

func (f createFlow) mutate(fc *flowContext) (*model.Resource, error) {
	cmd := fc.cmd
	res := &model.Resource{
		RepoID:              f.e.ids.NewID(),
		Type:                cmd.ResourceType,
		Name:                cmd.Name,
		Revision:            1,
		CreationTime:        fc.now,
		CreationClient:      cmd.Client,
		LastEppUpdateTime:   fc.now,
		LastEppUpdateClient: cmd.Client,
		DeletionTime:        model.EndOfTime,
		SponsorClient:       cmd.Client,
		Transfer:            model.TransferData{Status: model.TransferNotPending},
	}
	p := cmd.Payload
	switch cmd.ResourceType {
	case model.Domain:
		in := p.Domain
		ns, err := canonicalNameservers(fc, in.Nameservers)
		if err != nil {
			return nil, err
		}
		var contacts map[string]string
		if len(in.Contacts) > 0 {
			contacts = make(map[string]string, len(in.Contacts))
			for role, id := range in.Contacts {
				contacts[role] = id
			}
		}
		res.Domain = &model.DomainPayload{
			TLD:                    fc.tld.Name,
			RegistrationExpiration: fc.now.AddDate(years(in.PeriodYears), 0, 0),
			Registrant:             in.Registrant,
			Contacts:               contacts,
			Nameservers:            ns,
			AuthInfo:               in.AuthInfo,
		}
	case model.Contact:
		in := p.Contact
		res.Contact = &model.ContactPayload{
			Email:       in.Email,
			Voice:       in.Voice,
			Name:        in.Name,
			Org:         in.Org,
			City:        in.City,
			CountryCode: in.CountryCode,
			AuthInfo:    in.AuthInfo,
		}
	case model.Host:
		res.Host = &model.HostPayload{SuperordinateDomain: fc.superordinate}
		if p.Host != nil {
			addrs, err := canonicalAddresses(p.Host.InetAddresses)
			if err != nil {
				return nil, err
			}
			res.Host.InetAddresses = addrs
		}
	}
	return res, nil
}

func (f createFlow) related(fc *flowContext, next *model.Resource) (*model.Resource, error) {
	if err := index.RecordCreation(fc.ctx, fc.tx, next.Type, next.Name, next.Ref(), fc.now); err != nil {
		return nil, err
	}
	if next.Type != model.Domain {
		return next, nil
	}

	t := fc.tld
	y := years(fc.cmd.Payload.Domain.PeriodYears)
	if _, err := f.e.ledger.CreateCharge(fc.tx, next, fc.cmd.Client, model.ReasonCreate,
		t.Money(t.CreateCost*int64(y)), y, fc.now, fc.now.Add(t.AddGracePeriod)); err != nil {
		return nil, err
	}
	autorenew, err := f.e.ledger.CreateRecurring(fc.tx, next, fc.cmd.Client, model.ReasonAutoRenew,
		next.Domain.RegistrationExpiration)
	if err != nil {
		return nil, err
	}
	next.Domain.AutorenewRecurring = &autorenew
	return next, nil
}

func years(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
