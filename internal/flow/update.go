package flow

import (
	"slices"

	"github.com/icewiki/nomulus/internal/model"
)

type updateFlow struct{ e *Engine }

func (updateFlow) authorize(fc *flowContext) error { return authorizeSponsor(fc) }

func (updateFlow) validate(fc *flowContext) error {
	res := fc.existing
	in := fc.cmd.Payload.Update
	if in == nil {
		return model.Parameter("update requires an update payload")
	}
	if res.HasStatus(model.StatusPendingDelete) {
		return model.InvalidState("%s %q is pending delete", res.Type, res.Name)
	}
	if res.HasStatus(model.StatusServerUpdateProhibited) && !fc.cmd.Superuser {
		return model.InvalidState("%s %q has status %s", res.Type, res.Name, model.StatusServerUpdateProhibited)
	}
	// Removing clientUpdateProhibited is the one change allowed while it is set.
	if res.HasStatus(model.StatusClientUpdateProhibited) && !fc.cmd.Superuser &&
		!slices.Contains(in.RemoveStatuses, model.StatusClientUpdateProhibited) {
		return model.InvalidState("%s %q has status %s", res.Type, res.Name, model.StatusClientUpdateProhibited)
	}

	for _, s := range slices.Concat(in.AddStatuses, in.RemoveStatuses) {
		settable := s.ClientSettable()
		if fc.cmd.Superuser {
			settable = s.ServerSettable()
		}
		if !settable {
			return model.Parameter("status %q cannot be set by this client", s)
		}
	}

	domainOnly := in.Registrant != nil || len(in.AddNameservers) > 0 || len(in.RemoveNameservers) > 0 ||
		len(in.AddContacts) > 0 || len(in.RemoveContacts) > 0
	contactOnly := in.Email != nil || in.Voice != nil
	hostOnly := len(in.AddAddresses) > 0 || len(in.RemoveAddresses) > 0
	switch {
	case domainOnly && res.Type != model.Domain,
		contactOnly && res.Type != model.Contact,
		hostOnly && res.Type != model.Host:
		return model.Parameter("update carries fields that do not apply to %s objects", res.Type)
	case in.AuthInfo != nil && res.Type == model.Host:
		return model.Parameter("host objects have no auth info")
	}

	if in.Registrant != nil {
		if err := requireContacts(fc, []string{*in.Registrant}); err != nil {
			return err
		}
	}
	if err := validateContactChanges(fc, res, in); err != nil {
		return err
	}
	if _, err := canonicalNameservers(fc, in.AddNameservers); err != nil {
		return err
	}
	if _, err := canonicalAddresses(in.AddAddresses); err != nil {
		return err
	}
	if res.Type == model.Host && len(in.AddAddresses) > 0 && res.Host.SuperordinateDomain == "" {
		return model.Parameter("external host %q must not have inet addresses", res.Name)
	}
	return nil
}

func (updateFlow) mutate(fc *flowContext) (*model.Resource, error) {
	in := fc.cmd.Payload.Update
	next := fc.existing.Successor(fc.cmd.Client, fc.now)
	for _, s := range in.RemoveStatuses {
		next.RemoveStatus(s)
	}
	for _, s := range in.AddStatuses {
		next.AddStatus(s)
	}

	switch next.Type {
	case model.Domain:
		d := next.Domain
		if in.AuthInfo != nil {
			d.AuthInfo = *in.AuthInfo
		}
		if in.Registrant != nil {
			d.Registrant = *in.Registrant
		}
		for _, role := range in.RemoveContacts {
			delete(d.Contacts, role)
		}
		for role, id := range in.AddContacts {
			if d.Contacts == nil {
				d.Contacts = make(map[string]string, len(in.AddContacts))
			}
			d.Contacts[role] = id
		}
		if len(d.Contacts) == 0 {
			d.Contacts = nil
		}
		add, err := canonicalNameservers(fc, in.AddNameservers)
		if err != nil {
			return nil, err
		}
		remove := make([]string, 0, len(in.RemoveNameservers))
		for _, h := range in.RemoveNameservers {
			name, err := model.CanonicalizeHostName(h)
			if err != nil {
				return nil, err
			}
			remove = append(remove, name)
		}
		d.Nameservers = applySet(d.Nameservers, add, remove)
	case model.Contact:
		c := next.Contact
		if in.AuthInfo != nil {
			c.AuthInfo = *in.AuthInfo
		}
		if in.Email != nil {
			c.Email = *in.Email
		}
		if in.Voice != nil {
			c.Voice = *in.Voice
		}
	case model.Host:
		add, err := canonicalAddresses(in.AddAddresses)
		if err != nil {
			return nil, err
		}
		remove, err := canonicalAddresses(in.RemoveAddresses)
		if err != nil {
			return nil, err
		}
		next.Host.InetAddresses = applySet(next.Host.InetAddresses, add, remove)
		if next.Host.SuperordinateDomain != "" && len(next.Host.InetAddresses) == 0 {
			return nil, model.Parameter("subordinate host %q requires inet addresses", next.Name)
		}
	}
	return next, nil
}

func (updateFlow) related(_ *flowContext, next *model.Resource) (*model.Resource, error) {
	return next, nil
}

// validateContactChanges checks removed roles are set on res and added
// contacts exist.
func validateContactChanges(fc *flowContext, res *model.Resource, in *UpdateInput) error {
	if res.Domain == nil {
		return nil
	}
	for _, role := range in.RemoveContacts {
		if _, ok := res.Domain.Contacts[role]; !ok {
			return model.Parameter("domain %q has no %s contact", res.Name, role)
		}
	}
	ids := make([]string, 0, len(in.AddContacts))
	for role, id := range in.AddContacts {
		if role == "" {
			return model.Parameter("contact role must not be empty")
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return requireContacts(fc, ids)
}

// applySet returns the sorted set cur minus remove plus add.
func applySet(cur, add, remove []string) []string {
	out := slices.DeleteFunc(slices.Clone(cur), func(s string) bool { return slices.Contains(remove, s) })
	out = append(out, add...)
	slices.Sort(out)
	return slices.Compact(out)
}
