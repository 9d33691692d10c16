// Package tld loads per-TLD registry policy from CUE definitions.
//
// A definition directory holds CUE files contributing to a top-level "tld"
// struct keyed by TLD name:
//
//	tld: example: {
//		automaticTransferLength: "120h"
//		createCost: 800
//	}
//
// Every entry is unified with the #TLD schema below, which supplies
// defaults, so only prices are required.
package tld

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/icewiki/nomulus/internal/model"
)

const schema = `
#TLD: {
	automaticTransferLength: *"120h" | string
	transferGracePeriod:     *"120h" | string
	addGracePeriod:          *"120h" | string
	currency:                *"USD" | string
	createCost:              int & >=0
	transferCost:            *createCost | (int & >=0)
	renewCost:               *createCost | (int & >=0)
}
`

// TLD is the policy of one top-level domain. Costs are in minor units of
// Currency.
type TLD struct {
	Name                    string        `json:"name"`
	AutomaticTransferLength time.Duration `json:"automatic_transfer_length"`
	TransferGracePeriod     time.Duration `json:"transfer_grace_period"`
	AddGracePeriod          time.Duration `json:"add_grace_period"`
	Currency                string        `json:"currency"`
	CreateCost              int64         `json:"create_cost"`
	TransferCost            int64         `json:"transfer_cost"`
	RenewCost               int64         `json:"renew_cost"`
}

// Money returns amount in the TLD's currency.
func (t TLD) Money(amount int64) model.Money {
	return model.Money{Currency: t.Currency, Amount: amount}
}

func (t TLD) String() string {
	return fmt.Sprintf("%s: transfer=%s grace=%s create=%d transfer=%d renew=%d %s",
		t.Name, t.AutomaticTransferLength, t.TransferGracePeriod,
		t.CreateCost, t.TransferCost, t.RenewCost, t.Currency)
}

type definition struct {
	AutomaticTransferLength string `json:"automaticTransferLength"`
	TransferGracePeriod     string `json:"transferGracePeriod"`
	AddGracePeriod          string `json:"addGracePeriod"`
	Currency                string `json:"currency"`
	CreateCost              int64  `json:"createCost"`
	TransferCost            int64  `json:"transferCost"`
	RenewCost               int64  `json:"renewCost"`
}

// Registry is an immutable set of TLDs keyed by canonical name.
type Registry struct {
	tlds map[string]TLD
}

// NewRegistry builds a registry from explicit values. Names are
// canonicalised.
func NewRegistry(tlds ...TLD) (*Registry, error) {
	r := &Registry{tlds: make(map[string]TLD, len(tlds))}
	for _, t := range tlds {
		name, err := model.CanonicalizeTLD(t.Name)
		if err != nil {
			return nil, err
		}
		t.Name = name
		r.tlds[name] = t
	}
	return r, nil
}

// LoadDir loads every CUE file in dir.
func LoadDir(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("tld directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	return fromValue(ctx, value)
}

// Parse loads TLD definitions from CUE source text.
func Parse(src string) (*Registry, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compiling CUE: %w", err)
	}
	return fromValue(ctx, value)
}

func fromValue(ctx *cue.Context, value cue.Value) (*Registry, error) {
	def := ctx.CompileString(schema).LookupPath(cue.ParsePath("#TLD"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("compiling TLD schema: %w", err)
	}

	tldsVal := value.LookupPath(cue.ParsePath("tld"))
	if !tldsVal.Exists() {
		return nil, fmt.Errorf("no tld definitions found")
	}
	iter, err := tldsVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating tlds: %w", err)
	}

	var tlds []TLD
	for iter.Next() {
		label := iter.Label()
		v := def.Unify(iter.Value())
		if err := v.Validate(cue.Concrete(true)); err != nil {
			return nil, fmt.Errorf("tld %q: %w", label, err)
		}
		var d definition
		if err := v.Decode(&d); err != nil {
			return nil, fmt.Errorf("tld %q: %w", label, err)
		}
		t, err := d.toTLD(label)
		if err != nil {
			return nil, fmt.Errorf("tld %q: %w", label, err)
		}
		tlds = append(tlds, t)
	}
	return NewRegistry(tlds...)
}

func (d definition) toTLD(name string) (TLD, error) {
	t := TLD{
		Name:         name,
		Currency:     d.Currency,
		CreateCost:   d.CreateCost,
		TransferCost: d.TransferCost,
		RenewCost:    d.RenewCost,
	}
	for _, f := range []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"automaticTransferLength", d.AutomaticTransferLength, &t.AutomaticTransferLength},
		{"transferGracePeriod", d.TransferGracePeriod, &t.TransferGracePeriod},
		{"addGracePeriod", d.AddGracePeriod, &t.AddGracePeriod},
	} {
		dur, err := time.ParseDuration(f.raw)
		if err != nil {
			return TLD{}, fmt.Errorf("%s: %w", f.field, err)
		}
		if dur <= 0 {
			return TLD{}, fmt.Errorf("%s must be positive", f.field)
		}
		*f.dst = dur
	}
	return t, nil
}

// Get returns the TLD called name.
func (r *Registry) Get(name string) (TLD, error) {
	canon, err := model.CanonicalizeTLD(name)
	if err != nil {
		return TLD{}, err
	}
	t, ok := r.tlds[canon]
	if !ok {
		return TLD{}, model.Parameter("unknown TLD %q", name)
	}
	return t, nil
}

// ForDomain returns the TLD a canonical domain name is registered under:
// the longest registered suffix that leaves at least one label in front.
func (r *Registry) ForDomain(domain string) (TLD, error) {
	labels := strings.Split(domain, ".")
	for i := 1; i < len(labels); i++ {
		if t, ok := r.tlds[strings.Join(labels[i:], ".")]; ok {
			return t, nil
		}
	}
	return TLD{}, model.Parameter("domain %q is not under a registered TLD", domain)
}

// Names returns the registered TLD names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tlds))
	for n := range r.tlds {
		names = append(names, n)
	}
	sort.Strings(names)
	return slices.Clip(names)
}
