package session

import (
	r1err "github.com/ratio1/r1setup/internal/errors"
	"github.com/ratio1/r1setup/internal/inventory"
	"github.com/ratio1/r1setup/internal/validate"
)

// createHost collects a complete host. Declining the summary starts over from
// the address; nothing from the rejected attempt is kept.
func (s *Session) createHost(num int) (inventory.Host, error) {
	for {
		s.con.Blank()
		s.con.Info("Configuring GPU Node #%d", num)
		s.con.Info("------------------------")

		addr, err := s.askAddress("")
		if err != nil {
			return inventory.Host{}, err
		}
		user, err := s.con.Required("Enter SSH username", "")
		if err != nil {
			return inventory.Host{}, err
		}
		auth, err := s.collectAuth(inventory.AuthKey)
		if err != nil {
			return inventory.Host{}, err
		}
		h, err := inventory.NewHost(addr, user, auth)
		if err != nil {
			return inventory.Host{}, err
		}

		s.con.Blank()
		s.con.Warn("Configuration Summary:")
		s.con.Linef("IP Address: %s", h.Address)
		s.con.Linef("Username: %s", h.User)
		s.con.Linef("Auth Method: %s", h.Mode())

		ok, err := s.con.Confirm("Are you happy with this configuration?", true)
		if err != nil {
			return inventory.Host{}, err
		}
		if ok {
			return h, nil
		}
		s.con.Warn("Let's configure this node again.")
	}
}

// editHost changes fields of h one at a time until the user is done. It works
// on a copy; the caller decides whether to store the result.
func (s *Session) editHost(name string, h inventory.Host) (inventory.Host, error) {
	s.con.Blank()
	s.con.Info("Editing host: %s", name)
	s.con.Warn("Current configuration:")
	s.printFields(h.Masked(), "")

	options := []string{"IP address", "SSH username", "Authentication method", "Save and exit"}
	for {
		i, err := s.con.Choose("What would you like to edit?", options, len(options)-1)
		if err != nil {
			return h, err
		}
		switch i {
		case 0:
			addr, err := s.askAddress(h.Address)
			if err != nil {
				return h, err
			}
			h.Address = addr
		case 1:
			user, err := s.con.Required("Enter SSH username", h.User)
			if err != nil {
				return h, err
			}
			h.User = user
		case 2:
			auth, err := s.collectAuth(h.Mode())
			if err != nil {
				return h, err
			}
			h = h.WithAuth(auth)
			s.log.Debug().Str("host", name).Stringer("mode", auth.Mode()).Msg("authentication replaced")
		default:
			return h, nil
		}
	}
}

func (s *Session) askAddress(def string) (string, error) {
	for {
		v, err := s.con.Required("Enter IP address", def)
		if err != nil {
			return "", err
		}
		if validate.Address(v) {
			return v, nil
		}
		s.con.Error("Invalid IP address format. Please use format: xxx.xxx.xxx.xxx")
	}
}

func (s *Session) askHostName(label, def string) (string, error) {
	for {
		v, err := s.con.Ask(label, def)
		if err != nil {
			return "", err
		}
		if validate.HostName(v) {
			return v, nil
		}
		s.con.Error("Invalid host name %q. Use letters, digits and dashes without spaces.", v)
	}
}

// collectAuth asks for an authentication mode and everything that mode needs.
// The result never carries fields from another mode.
func (s *Session) collectAuth(def inventory.AuthMode) (inventory.Auth, error) {
	defIdx := 1
	if def == inventory.AuthPassword {
		defIdx = 0
	}
	i, err := s.con.Choose("Choose authentication method:", []string{
		"Password authentication",
		"SSH key authentication",
	}, defIdx)
	if err != nil {
		return nil, err
	}
	if i == 0 {
		return s.collectPassword()
	}
	return s.collectKey()
}

func (s *Session) collectPassword() (inventory.Auth, error) {
	var sshPass string
	for {
		v, err := s.con.Secret("Enter SSH password")
		if err != nil {
			return nil, err
		}
		if v != "" {
			sshPass = v
			break
		}
		s.con.Error("Password cannot be empty")
	}
	become, err := s.con.Secret("Enter sudo password (press Enter if same as SSH)")
	if err != nil {
		return nil, err
	}
	return inventory.NewPasswordAuth(sshPass, become), nil
}

// collectKey asks for a private key path until one exists or the user gives up,
// which is reported as a KeyMissing error.
func (s *Session) collectKey() (inventory.Auth, error) {
	for {
		p, err := s.con.Ask("Enter path to SSH private key", s.opts.DefaultKeyPath)
		if err != nil {
			return nil, err
		}
		if validate.KeyPath(p) {
			s.inspectKey(p)
			return inventory.KeyAuth{KeyPath: p}, nil
		}
		s.con.Error("Key file not found: %s", validate.ExpandHome(p))
		retry, err := s.con.Confirm("Would you like to try another path?", true)
		if err != nil {
			return nil, err
		}
		if !retry {
			s.con.Error("Please ensure the key file exists and try again")
			return nil, r1err.KeyMissing(p)
		}
	}
}

func (s *Session) inspectKey(p string) {
	if s.opts.InspectKey == nil {
		return
	}
	info, err := s.opts.InspectKey(validate.ExpandHome(p))
	switch {
	case err != nil:
		s.con.Warn("Warning: %s does not look like an SSH private key (%v)", p, err)
	case info.Encrypted:
		s.con.Warn("Warning: %s is passphrase protected; load it into ssh-agent before deploying", p)
	default:
		s.log.Debug().Str("type", info.Type).Str("fingerprint", info.Fingerprint).Msg("private key accepted")
	}
}

func (s *Session) printFields(fields []inventory.Field, indent string) {
	for _, f := range fields {
		s.con.Linef("%s%s: %s", indent, f.Key, f.Value)
	}
}

func (s *Session) printInventory(doc *inventory.Document) {
	env := string(doc.Environment)
	if doc.EnvironmentMissing {
		env = "Not set"
	}
	s.con.Blank()
	s.con.Info("Network Environment: %s", env)
	if doc.Len() == 0 {
		s.con.Error("No hosts configured yet!")
		return
	}
	s.con.Blank()
	s.con.Info("Current configuration:")
	for _, l := range doc.List() {
		s.con.Blank()
		s.con.Warn("Host: %s", l.Name)
		s.printFields(l.Fields, "  ")
	}
}
