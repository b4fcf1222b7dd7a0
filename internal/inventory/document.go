// Package inventory models the GPU node inventory: an environment selector and
// an insertion-ordered set of named hosts.
package inventory

import (
	"fmt"
	"strings"

	r1err "github.com/ratio1/r1setup/internal/errors"
	"github.com/ratio1/r1setup/internal/validate"
	"github.com/ratio1/r1setup/pkg/api"
)

// Environment is the deployment network tier applied to every host.
type Environment string

const (
	Mainnet Environment = "mainnet"
	Testnet Environment = "testnet"
	Devnet  Environment = "devnet"
)

// Environments lists the selectable tiers in menu order.
var Environments = []Environment{Mainnet, Testnet, Devnet}

func (e Environment) Valid() bool {
	for _, v := range Environments {
		if e == v {
			return true
		}
	}
	return false
}

// ParseEnvironment accepts one of the enumerated literals.
func ParseEnvironment(s string) (Environment, error) {
	e := Environment(strings.TrimSpace(s))
	if !e.Valid() {
		return "", r1err.Validation("unknown environment (expected mainnet, testnet or devnet)", s)
	}
	return e, nil
}

// DefaultHostPrefix prefixes generated host names.
const DefaultHostPrefix = "gpu-node-"

// Document is the full inventory. The zero value is not usable; call New.
type Document struct {
	Environment Environment
	// EnvironmentMissing is set when a loaded file had no usable environment.
	EnvironmentMissing bool

	names []string
	hosts map[string]Host

	// Keys of the file that r1setup does not manage, written back unchanged.
	allExtra  map[string]interface{}
	varsExtra map[string]interface{}
	groups    map[string]interface{}
}

// New returns an empty inventory on mainnet.
func New() *Document {
	return &Document{Environment: Mainnet, hosts: map[string]Host{}}
}

func (d *Document) Len() int { return len(d.names) }

// Names returns host names in insertion order.
func (d *Document) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

func (d *Document) Has(name string) bool {
	_, ok := d.hosts[name]
	return ok
}

func (d *Document) Get(name string) (Host, bool) {
	h, ok := d.hosts[name]
	return h, ok
}

// Put inserts or overwrites a host. An overwritten host keeps its position.
func (d *Document) Put(name string, h Host) error {
	if !validate.HostName(name) {
		return r1err.Validation("invalid host name (no spaces, ':' or '#')", name)
	}
	if err := h.Validate(); err != nil {
		return err
	}
	if _, ok := d.hosts[name]; !ok {
		d.names = append(d.names, name)
	}
	d.hosts[name] = h
	return nil
}

// Replace overwrites an existing host.
func (d *Document) Replace(name string, h Host) error {
	if !d.Has(name) {
		return r1err.Validation("no host with that name", name)
	}
	return d.Put(name, h)
}

// Delete removes an existing host.
func (d *Document) Delete(name string) error {
	if !d.Has(name) {
		return r1err.Validation("no host with that name", name)
	}
	delete(d.hosts, name)
	for i, n := range d.names {
		if n == name {
			d.names = append(d.names[:i], d.names[i+1:]...)
			break
		}
	}
	return nil
}

// SetEnvironment replaces the environment selector.
func (d *Document) SetEnvironment(e Environment) error {
	if !e.Valid() {
		return r1err.Validation("unknown environment", string(e))
	}
	d.Environment = e
	d.EnvironmentMissing = false
	return nil
}

// NextDefaultName returns gpu-node-<n> for the first free n from Len()+1.
func (d *Document) NextDefaultName() string {
	for n := d.Len() + 1; ; n++ {
		name := fmt.Sprintf("%s%d", DefaultHostPrefix, n)
		if !d.Has(name) {
			return name
		}
	}
}

// ToAPI converts the document to its file shape.
func (d *Document) ToAPI() api.Inventory {
	hosts := make(api.HostMap, 0, len(d.names))
	for _, n := range d.names {
		hosts = append(hosts, api.HostEntry{Name: n, Vars: d.hosts[n].toAPI()})
	}
	return api.Inventory{All: &api.Group{
		Vars: &api.Vars{AppEnv: string(d.Environment), Extra: d.varsExtra},
		Children: &api.Children{
			GPUNodes: &api.HostGroup{Hosts: hosts},
			Other:    d.groups,
		},
		Extra: d.allExtra,
	}}
}

// FromAPI builds a document from its file shape. The all.children.gpu_nodes
// group is required. Files without an environment (the older two-key layout)
// load as mainnet with EnvironmentMissing set.
func FromAPI(inv api.Inventory) (*Document, error) {
	if inv.All == nil {
		return nil, fmt.Errorf("missing top-level key %q", "all")
	}
	if inv.All.Children == nil {
		return nil, fmt.Errorf("missing key %q", "all.children")
	}
	if inv.All.Children.GPUNodes == nil {
		return nil, fmt.Errorf("missing key %q", "all.children."+api.GroupGPUNodes)
	}
	d := New()
	d.allExtra = inv.All.Extra
	d.groups = inv.All.Children.Other
	if inv.All.Vars != nil {
		d.varsExtra = inv.All.Vars.Extra
	}
	if inv.All.Vars == nil || inv.All.Vars.AppEnv == "" {
		d.EnvironmentMissing = true
	} else if e, err := ParseEnvironment(inv.All.Vars.AppEnv); err == nil {
		d.Environment = e
	} else {
		d.EnvironmentMissing = true
	}
	for _, e := range inv.All.Children.GPUNodes.Hosts {
		h, err := hostFromAPI(e.Name, e.Vars)
		if err != nil {
			return nil, err
		}
		if err := d.Put(e.Name, h); err != nil {
			return nil, fmt.Errorf("host %q: %w", e.Name, err)
		}
	}
	return d, nil
}
