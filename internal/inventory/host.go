package inventory

import (
	"fmt"

	r1err "github.com/ratio1/r1setup/internal/errors"
	"github.com/ratio1/r1setup/internal/validate"
	"github.com/ratio1/r1setup/pkg/api"
)

// AuthMode selects how the provisioning tool logs into a host.
type AuthMode int

const (
	AuthPassword AuthMode = iota + 1
	AuthKey
)

func (m AuthMode) String() string {
	switch m {
	case AuthPassword:
		return "Password"
	case AuthKey:
		return "SSH Key"
	default:
		return "unknown"
	}
}

// Auth is one of PasswordAuth or KeyAuth. A host carries exactly one.
type Auth interface {
	Mode() AuthMode
	validate() error
}

// PasswordAuth logs in with an SSH password and escalates with BecomePassword.
type PasswordAuth struct {
	SSHPassword    string
	BecomePassword string
}

// NewPasswordAuth builds a PasswordAuth; an empty become password reuses the
// SSH password.
func NewPasswordAuth(sshPassword, becomePassword string) PasswordAuth {
	if becomePassword == "" {
		becomePassword = sshPassword
	}
	return PasswordAuth{SSHPassword: sshPassword, BecomePassword: becomePassword}
}

func (PasswordAuth) Mode() AuthMode { return AuthPassword }

func (a PasswordAuth) validate() error {
	if a.SSHPassword == "" {
		return r1err.Validation("ssh password cannot be empty", "")
	}
	return nil
}

// KeyAuth logs in with a private key file. KeyPath is kept as entered.
type KeyAuth struct {
	KeyPath string
}

func (KeyAuth) Mode() AuthMode { return AuthKey }

func (a KeyAuth) validate() error {
	if !validate.Required(a.KeyPath) {
		return r1err.Validation("ssh private key path cannot be empty", "")
	}
	return nil
}

// Host is one GPU node's connection data.
type Host struct {
	Address string
	User    string
	Auth    Auth
	// ExtraArgs is always api.DefaultSSHCommonArgs.
	ExtraArgs string
}

// NewHost builds a Host and checks it.
func NewHost(address, user string, auth Auth) (Host, error) {
	h := Host{Address: address, User: user, Auth: auth, ExtraArgs: api.DefaultSSHCommonArgs}
	return h, h.Validate()
}

// Validate checks the address, user and authentication variant.
func (h Host) Validate() error {
	if !validate.Address(h.Address) {
		return r1err.Validation("invalid IP address (expected xxx.xxx.xxx.xxx)", h.Address)
	}
	if !validate.Required(h.User) {
		return r1err.Validation("ssh username cannot be empty", "")
	}
	if h.Auth == nil {
		return r1err.Validation("authentication method not set", "")
	}
	return h.Auth.validate()
}

// Mode returns the host's authentication mode, or 0 when unset.
func (h Host) Mode() AuthMode {
	if h.Auth == nil {
		return 0
	}
	return h.Auth.Mode()
}

// WithAuth returns a copy of h using auth. Fields of the previous mode are
// dropped with the old variant.
func (h Host) WithAuth(auth Auth) Host {
	h.Auth = auth
	return h
}

// Fields returns the host's variables in file order with raw values.
func (h Host) Fields() []Field {
	fields := []Field{
		{Key: api.KeyHost, Value: h.Address},
		{Key: api.KeyUser, Value: h.User},
	}
	switch a := h.Auth.(type) {
	case PasswordAuth:
		fields = append(fields,
			Field{Key: api.KeySSHPass, Value: a.SSHPassword},
			Field{Key: api.KeyBecomePassword, Value: a.BecomePassword},
		)
	case KeyAuth:
		fields = append(fields, Field{Key: api.KeyPrivateKeyFile, Value: a.KeyPath})
	}
	return append(fields, Field{Key: api.KeySSHCommonArgs, Value: h.ExtraArgs})
}

func (h Host) toAPI() api.HostVars {
	v := api.HostVars{
		AnsibleHost:   h.Address,
		AnsibleUser:   h.User,
		SSHCommonArgs: api.DefaultSSHCommonArgs,
	}
	switch a := h.Auth.(type) {
	case PasswordAuth:
		v.SSHPass = a.SSHPassword
		v.BecomePassword = a.BecomePassword
	case KeyAuth:
		v.PrivateKeyFile = a.KeyPath
	}
	return v
}

func hostFromAPI(name string, v api.HostVars) (Host, error) {
	hasPassword := v.SSHPass != "" || v.BecomePassword != "" || v.BecomePass != ""
	hasKey := v.PrivateKeyFile != ""
	var auth Auth
	switch {
	case hasPassword && hasKey:
		return Host{}, fmt.Errorf("host %q: both password and private key authentication are set", name)
	case hasKey:
		auth = KeyAuth{KeyPath: v.PrivateKeyFile}
	case hasPassword:
		become := v.BecomePassword
		if become == "" {
			become = v.BecomePass
		}
		auth = NewPasswordAuth(v.SSHPass, become)
	default:
		return Host{}, fmt.Errorf("host %q: no authentication method set", name)
	}
	h, err := NewHost(v.AnsibleHost, v.AnsibleUser, auth)
	if err != nil {
		return Host{}, fmt.Errorf("host %q: %w", name, err)
	}
	return h, nil
}
