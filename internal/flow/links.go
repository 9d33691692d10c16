package flow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/icewiki/nomulus/internal/index"
	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/store"
)

// LinkKind is the store kind of link markers. A marker in a resource's link
// group records that another active resource refers to it: a domain to the
// contacts and hosts it names, or a host to its superordinate domain.
//
// Markers are written blind by the referring flow. A delete lists the
// markers of its target inside its transaction, so a reference committed
// while the delete is in flight fails the delete with a conflict.
const LinkKind = "Link"

// linkGroup keeps markers apart from the resource's own group so that flows
// adding references to one resource do not contend with each other.
func linkGroup(ref model.ResourceRef) string {
	return fmt.Sprintf("links/%s/%s", ref.Type, ref.RepoID)
}

type link struct {
	From model.ResourceRef `json:"from"`
	Name string            `json:"name"`
}

type linkTarget struct {
	Type model.ResourceType
	Name string
}

// outgoing lists what res refers to while it is active at the flow instant.
func outgoing(fc *flowContext, res *model.Resource) []linkTarget {
	if res == nil || !res.DeletionTime.After(fc.now) {
		return nil
	}
	var out []linkTarget
	switch {
	case res.Domain != nil:
		for _, id := range res.Domain.ReferencedContacts() {
			out = append(out, linkTarget{model.Contact, id})
		}
		for _, h := range res.Domain.Nameservers {
			out = append(out, linkTarget{model.Host, h})
		}
	case res.Host != nil && res.Host.SuperordinateDomain != "":
		out = append(out, linkTarget{model.Domain, res.Host.SuperordinateDomain})
	}
	return out
}

// syncLinks writes markers for references next gains over prev and removes
// markers for references it drops.
func syncLinks(fc *flowContext, prev, next *model.Resource) error {
	before, after := outgoing(fc, prev), outgoing(fc, next)
	marker := link{From: next.Ref(), Name: next.Name}
	for _, t := range after {
		if slices.Contains(before, t) {
			continue
		}
		ref, ok, err := index.Lookup(fc.ctx, fc.tx, t.Type, t.Name, fc.now)
		if err != nil {
			return err
		}
		if !ok {
			return model.Integrity("%s %q refers to missing %s %q", next.Type, next.Name, t.Type, t.Name)
		}
		if err := fc.tx.Put(linkKey(ref, marker.From), marker); err != nil {
			return fmt.Errorf("write link marker: %w", err)
		}
	}
	for _, t := range before {
		if slices.Contains(after, t) {
			continue
		}
		ref, ok, err := index.Lookup(fc.ctx, fc.tx, t.Type, t.Name, fc.now)
		if err != nil {
			return err
		}
		if ok {
			fc.tx.Delete(linkKey(ref, marker.From))
		}
	}
	return nil
}

func linkKey(target, from model.ResourceRef) store.Key {
	return store.Key{Group: linkGroup(target), Kind: LinkKind, ID: from.RepoID}
}

// requireUnlinked fails when any resource still refers to res.
func requireUnlinked(fc *flowContext, res *model.Resource) error {
	links, err := store.ListAs[link](fc.ctx, fc.tx, linkGroup(res.Ref()), LinkKind, "", 0)
	if err != nil {
		return fmt.Errorf("list links of %s: %w", res.Ref(), err)
	}
	if len(links) == 0 {
		return nil
	}
	if res.Type == model.Domain {
		names := make([]string, 0, len(links))
		for _, l := range links {
			names = append(names, l.Name)
		}
		slices.Sort(names)
		return model.InvalidState("domain %q has subordinate hosts: %s", res.Name, strings.Join(names, ", "))
	}
	return model.InvalidState("%s %q is referenced by domain %q", res.Type, res.Name, links[0].Name)
}
