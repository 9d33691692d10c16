package flow

import (
	"net/netip"
	"slices"

	"github.com/icewiki/nomulus/internal/index"
	"github.com/icewiki/nomulus/internal/model"
)

// requireActive resolves name through the index at now and loads the
// resource, failing with a parameter error when it does not exist.
func requireActive(fc *flowContext, t model.ResourceType, name string) (*model.Resource, error) {
	ref, ok, err := index.Lookup(fc.ctx, fc.tx, t, name, fc.now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.Parameter("referenced %s %q does not exist", t, name)
	}
	return loadResource(fc.ctx, fc.tx, ref)
}

// requireContacts checks every contact ID exists.
func requireContacts(fc *flowContext, ids []string) error {
	for _, id := range ids {
		if err := model.ValidateContactID(id); err != nil {
			return err
		}
		if _, err := requireActive(fc, model.Contact, id); err != nil {
			return err
		}
	}
	return nil
}

// canonicalNameservers canonicalizes host names and checks each exists.
func canonicalNameservers(fc *flowContext, hosts []string) ([]string, error) {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		name, err := model.CanonicalizeHostName(h)
		if err != nil {
			return nil, err
		}
		if _, err := requireActive(fc, model.Host, name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// canonicalAddresses parses and normalizes IP addresses.
func canonicalAddresses(addrs []string) ([]string, error) {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		ip, err := netip.ParseAddr(a)
		if err != nil {
			return nil, model.Parameter("invalid inet address %q", a)
		}
		if ip.Zone() != "" {
			return nil, model.Parameter("inet address %q must not carry a zone", a)
		}
		out = append(out, ip.Unmap().String())
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
