package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/ratio1/r1setup/internal/inventory"
	"github.com/ratio1/r1setup/internal/prompt"
)

// firstRun collects the environment and a batch of hosts into doc, then saves
// once for the whole batch.
func (s *Session) firstRun(ctx context.Context, doc *inventory.Document) (*inventory.Document, error) {
	doc, err := s.changeEnvironment(ctx, doc)
	if err != nil {
		return nil, err
	}
	n, err := s.con.PositiveInt("How many GPU nodes do you want to configure")
	if err != nil {
		return nil, err
	}
	s.con.Blank()
	s.con.Success("Configuring %d GPU node(s).", n)

	for i := 1; i <= n; i++ {
		name, err := s.askNewHostName(doc, fmt.Sprintf("Enter name for GPU node #%d", i), fmt.Sprintf("%s%d", inventory.DefaultHostPrefix, i))
		if err != nil {
			return nil, err
		}
		h, err := s.createHost(i)
		if err != nil {
			return nil, err
		}
		if err := doc.Put(name, h); err != nil {
			return nil, err
		}
		s.log.Info().Str("host", name).Stringer("mode", h.Mode()).Msg("host configured")
		s.con.Blank()
		s.con.Success("GPU node '%s' configured successfully!", name)
		s.con.Info("%s", strings.Repeat("=", 30))
	}
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// askNewHostName asks for a host name, requiring confirmation before an
// existing host is overwritten.
func (s *Session) askNewHostName(doc *inventory.Document, label, def string) (string, error) {
	for {
		name, err := s.askHostName(label, def)
		if err != nil {
			return "", err
		}
		if !doc.Has(name) {
			return name, nil
		}
		s.con.Error("A host with name '%s' already exists!", name)
		ok, err := s.con.Confirm("Do you want to overwrite it?", false)
		if err != nil {
			return "", err
		}
		if ok {
			return name, nil
		}
	}
}

func (s *Session) view(_ context.Context, doc *inventory.Document) (*inventory.Document, error) {
	s.printInventory(doc)
	return doc, s.con.Pause()
}

func (s *Session) addHostMenu(_ context.Context, doc *inventory.Document) (*inventory.Document, error) {
	num := doc.Len() + 1
	s.con.Blank()
	s.con.Success("Adding new GPU node #%d", num)
	name, err := s.askHostName("Enter name for new GPU node", doc.NextDefaultName())
	if err != nil {
		return doc, err
	}
	if doc.Has(name) {
		s.con.Error("A host with name '%s' already exists!", name)
		ok, err := s.con.Confirm("Do you want to overwrite it?", false)
		if err != nil {
			return doc, err
		}
		if !ok {
			s.con.Warn("Host addition cancelled.")
			return doc, nil
		}
	}
	h, err := s.createHost(num)
	if err != nil {
		return doc, err
	}
	return s.addHost(doc, name, h)
}

// addHost stores h under name. Overwrite confirmation happens before the host
// is collected.
func (s *Session) addHost(doc *inventory.Document, name string, h inventory.Host) (*inventory.Document, error) {
	if err := doc.Put(name, h); err != nil {
		return doc, err
	}
	s.log.Info().Str("host", name).Stringer("mode", h.Mode()).Msg("host added")
	s.con.Blank()
	s.con.Success("GPU node '%s' added successfully!", name)
	return doc, nil
}

func (s *Session) updateHostMenu(_ context.Context, doc *inventory.Document) (*inventory.Document, error) {
	name, ok, err := s.pickHost(doc, "update", "Host update cancelled.")
	if err != nil || !ok {
		return doc, err
	}
	return s.updateHost(doc, name)
}

func (s *Session) updateHost(doc *inventory.Document, name string) (*inventory.Document, error) {
	h, ok := doc.Get(name)
	if !ok {
		s.con.Error("Host '%s' not found", name)
		return doc, nil
	}
	edited, err := s.editHost(name, h)
	if err != nil {
		return doc, err
	}
	if err := doc.Replace(name, edited); err != nil {
		return doc, err
	}
	s.log.Info().Str("host", name).Msg("host updated")
	s.con.Success("Host '%s' updated successfully!", name)
	return doc, nil
}

func (s *Session) deleteHostMenu(_ context.Context, doc *inventory.Document) (*inventory.Document, error) {
	name, ok, err := s.pickHost(doc, "delete", "Host deletion cancelled.")
	if err != nil || !ok {
		return doc, err
	}
	return s.deleteHost(doc, name)
}

// deleteHost removes name after a second confirmation. An unknown name is
// reported and leaves doc untouched.
func (s *Session) deleteHost(doc *inventory.Document, name string) (*inventory.Document, error) {
	if !doc.Has(name) {
		s.con.Error("Host '%s' not found", name)
		return doc, nil
	}
	ok, err := s.con.Confirm(fmt.Sprintf("Are you sure you want to delete host '%s'?", name), false)
	if err != nil {
		return doc, err
	}
	if !ok {
		s.con.Warn("Host deletion cancelled.")
		return doc, nil
	}
	if err := doc.Delete(name); err != nil {
		return doc, err
	}
	s.log.Info().Str("host", name).Msg("host deleted")
	s.con.Success("Host '%s' deleted successfully!", name)
	return doc, nil
}

// pickHost lists hosts and returns the one chosen by number or by name.
func (s *Session) pickHost(doc *inventory.Document, verb, cancelled string) (string, bool, error) {
	if doc.Len() == 0 {
		s.con.Error("No hosts configured yet!")
		return "", false, nil
	}
	names := doc.Names()
	s.con.Blank()
	s.con.Info("Select a host to %s:", verb)
	for i, n := range names {
		s.con.Linef("%d) %s", i+1, n)
	}
	v, err := s.con.Ask(fmt.Sprintf("Enter host number or name to %s (or 'c' to cancel)", verb), "c")
	if err != nil {
		return "", false, err
	}
	if strings.EqualFold(v, "c") {
		s.con.Warn("%s", cancelled)
		return "", false, nil
	}
	if i, ok := prompt.ParseIndex(v, len(names)); ok {
		return names[i], true, nil
	}
	if isNumber(v) {
		s.con.Error("Invalid host number")
		return "", false, nil
	}
	return v, true, nil
}

func (s *Session) changeEnvironment(_ context.Context, doc *inventory.Document) (*inventory.Document, error) {
	current := "not set"
	def := 0
	if !doc.EnvironmentMissing {
		current = string(doc.Environment)
		for i, e := range inventory.Environments {
			if e == doc.Environment {
				def = i
			}
		}
	}
	options := make([]string, len(inventory.Environments))
	for i, e := range inventory.Environments {
		options[i] = string(e)
	}
	s.con.Warn("Current default is '%s'.", current)
	i, err := s.con.Choose("Choose the network environment:", options, def)
	if err != nil {
		return doc, err
	}
	if err := doc.SetEnvironment(inventory.Environments[i]); err != nil {
		return doc, err
	}
	s.log.Info().Str("env", string(doc.Environment)).Msg("environment selected")
	s.con.Blank()
	s.con.Success("%s network selected.", doc.Environment)
	return doc, nil
}

// createNew supersedes the current inventory: the file moves to the history
// directory and a fresh document is collected.
func (s *Session) createNew(ctx context.Context, doc *inventory.Document) (*inventory.Document, error) {
	if s.store.Exists() {
		ok, err := s.con.Confirm("This will replace your current configuration. Are you sure?", false)
		if err != nil {
			return doc, err
		}
		if !ok {
			s.con.Warn("Operation cancelled.")
			return doc, nil
		}
		if err := s.backup(ctx); err != nil {
			return doc, err
		}
	}
	return s.firstRun(ctx, inventory.New())
}

func isNumber(v string) bool {
	if v == "" {
		return false
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
