package api

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// v1 is the inventory file read by the provisioning playbooks.

// Host variable keys as they appear in the inventory file.
const (
	KeyHost              = "ansible_host"
	KeyUser              = "ansible_user"
	KeySSHPass           = "ansible_ssh_pass"
	KeyBecomePassword    = "ansible_become_password"
	KeyLegacyBecomePass  = "ansible_become_pass"
	KeyPrivateKeyFile    = "ansible_ssh_private_key_file"
	KeySSHCommonArgs     = "ansible_ssh_common_args"
	KeyAppEnv            = "mnl_app_env"
	GroupGPUNodes        = "gpu_nodes"
	DefaultSSHCommonArgs = "-o StrictHostKeyChecking=no"
)

type Inventory struct {
	All *Group `yaml:"all"`
}

// Group is the top-level "all" group. Keys r1setup does not manage are kept
// in Extra so they survive a rewrite.
type Group struct {
	Vars     *Vars                  `yaml:"vars,omitempty"`
	Children *Children              `yaml:"children"`
	Extra    map[string]interface{} `yaml:",inline"`
}

type Vars struct {
	AppEnv string                 `yaml:"mnl_app_env,omitempty"`
	Extra  map[string]interface{} `yaml:",inline"`
}

// Children holds the gpu_nodes group; sibling groups are carried in Other.
type Children struct {
	GPUNodes *HostGroup             `yaml:"gpu_nodes"`
	Other    map[string]interface{} `yaml:",inline"`
}

type HostGroup struct {
	Hosts HostMap `yaml:"hosts"`
}

type HostVars struct {
	AnsibleHost    string `yaml:"ansible_host"`
	AnsibleUser    string `yaml:"ansible_user"`
	SSHPass        string `yaml:"ansible_ssh_pass,omitempty"`
	BecomePassword string `yaml:"ansible_become_password,omitempty"`
	// BecomePass is the older spelling; it is read but never written.
	BecomePass     string `yaml:"ansible_become_pass,omitempty"`
	PrivateKeyFile string `yaml:"ansible_ssh_private_key_file,omitempty"`
	SSHCommonArgs  string `yaml:"ansible_ssh_common_args,omitempty"`
}

type HostEntry struct {
	Name string
	Vars HostVars
}

// HostMap is a yaml mapping of host name to HostVars that keeps file order.
type HostMap []HostEntry

func (m HostMap) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range m {
		var val yaml.Node
		if err := val.Encode(e.Vars); err != nil {
			return nil, fmt.Errorf("encode host %s: %w", e.Name, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Name},
			&val,
		)
	}
	return node, nil
}

func (m *HostMap) UnmarshalYAML(value *yaml.Node) error {
	*m = nil
	if value.Kind == yaml.ScalarNode && value.ShortTag() == "!!null" {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: hosts must be a mapping", value.Line)
	}
	seen := make(map[string]bool, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		if seen[k.Value] {
			return fmt.Errorf("line %d: duplicate host %q", k.Line, k.Value)
		}
		seen[k.Value] = true
		var hv HostVars
		if !(v.Kind == yaml.ScalarNode && v.ShortTag() == "!!null") {
			if err := v.Decode(&hv); err != nil {
				return fmt.Errorf("host %q: %w", k.Value, err)
			}
		}
		*m = append(*m, HostEntry{Name: k.Value, Vars: hv})
	}
	return nil
}
