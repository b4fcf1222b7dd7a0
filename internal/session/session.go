// Package session runs the interactive inventory editor. The inventory is a
// value owned by Run and handed to, and returned from, each menu handler; a
// handler only touches it once its input is fully valid, and every durable
// change is saved before the menu is shown again.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	r1err "github.com/ratio1/r1setup/internal/errors"
	"github.com/ratio1/r1setup/internal/inventory"
	"github.com/ratio1/r1setup/internal/prompt"
	"github.com/ratio1/r1setup/internal/ssh"
	"github.com/ratio1/r1setup/internal/store"
)

// Store is the persistence the session needs.
type Store interface {
	Path() string
	Exists() bool
	Load() (*inventory.Document, error)
	Save(doc *inventory.Document) error
	BackupAndClear(ctx context.Context) (string, error)
}

// Options tunes a Session.
type Options struct {
	// DefaultKeyPath is offered at the private key prompt.
	DefaultKeyPath string
	// InspectKey, when set, is used to warn about key files that do not parse.
	InspectKey func(path string) (ssh.KeyInfo, error)
}

// Session is one interactive run against an inventory file.
type Session struct {
	con   *prompt.Console
	store Store
	opts  Options
	log   zerolog.Logger
	// saved is the encoding of the document as last written or loaded.
	saved []byte
}

func New(con *prompt.Console, st Store, opts Options) *Session {
	if opts.DefaultKeyPath == "" {
		opts.DefaultKeyPath = "~/.ssh/id_rsa"
	}
	return &Session{
		con:   con,
		store: st,
		opts:  opts,
		log:   log.With().Str("session", uuid.NewString()).Logger(),
	}
}

// Run drives the session until the user exits and returns the final
// inventory. An explicit abort returns an Aborted error; cancelling ctx
// returns an Interrupted one.
func (s *Session) Run(ctx context.Context) (*inventory.Document, error) {
	s.con.SetContext(ctx)
	s.con.Title("GPU Node Configuration")
	s.log.Debug().Str("path", s.store.Path()).Msg("session started")

	doc, err := s.start(ctx)
	if err != nil {
		return nil, err
	}
	return s.menu(ctx, doc)
}

func (s *Session) start(ctx context.Context) (*inventory.Document, error) {
	doc, err := s.store.Load()
	switch {
	case err == nil && doc.Len() > 0:
		s.remember(doc)
		s.con.Blank()
		s.con.Warn("Existing configuration found!")
		s.con.Info("Configuration file: %s", s.store.Path())
		s.printInventory(doc)
		return s.loadDecision(ctx, doc)
	case err == nil:
		return s.firstRun(ctx, doc)
	case errors.Is(err, r1err.ErrNotFound):
		s.log.Debug().Msg("no inventory yet")
		return s.firstRun(ctx, inventory.New())
	case errors.Is(err, r1err.ErrMalformed):
		s.reportError(err)
		return s.malformedDecision(ctx)
	default:
		return nil, err
	}
}

func (s *Session) loadDecision(ctx context.Context, doc *inventory.Document) (*inventory.Document, error) {
	i, err := s.con.Choose("What would you like to do with the existing configuration?", []string{
		"Use and modify existing configuration",
		"Create a new configuration (backup existing)",
		"Exit without changes",
	}, 0)
	if err != nil {
		return nil, err
	}
	switch i {
	case 0:
		if doc.EnvironmentMissing {
			s.con.Blank()
			s.con.Warn("Network environment is not set in the configuration.")
			if doc, err = s.changeEnvironment(ctx, doc); err != nil {
				return nil, err
			}
			if err := s.save(doc); err != nil {
				return nil, err
			}
		}
		return doc, nil
	case 1:
		if err := s.backup(ctx); err != nil {
			return nil, err
		}
		return s.firstRun(ctx, inventory.New())
	default:
		s.con.Warn("Exiting configuration without changes.")
		return nil, r1err.Aborted("exited without changes")
	}
}

// The unreadable file stays in place unless the user asks to replace it.
func (s *Session) malformedDecision(ctx context.Context) (*inventory.Document, error) {
	i, err := s.con.Choose("The existing configuration cannot be used. What would you like to do?", []string{
		"Create a new configuration (backup existing)",
		"Exit without changes",
	}, 1)
	if err != nil {
		return nil, err
	}
	if i != 0 {
		s.con.Warn("Exiting configuration without changes.")
		return nil, r1err.Aborted("exited without changes")
	}
	if err := s.backup(ctx); err != nil {
		return nil, err
	}
	return s.firstRun(ctx, inventory.New())
}

type action struct {
	label string
	run   func(ctx context.Context, doc *inventory.Document) (*inventory.Document, error)
	// durable actions are saved as soon as they return.
	durable bool
}

func (s *Session) actions() []action {
	return []action{
		{"View current configuration", s.view, false},
		{"Add a new node", s.addHostMenu, true},
		{"Update an existing node", s.updateHostMenu, true},
		{"Delete a node", s.deleteHostMenu, true},
		{"Change network environment", s.changeEnvironment, true},
		{"Create a completely new configuration", s.createNew, true},
		{"Save and exit", nil, false},
	}
}

func (s *Session) menu(ctx context.Context, doc *inventory.Document) (*inventory.Document, error) {
	actions := s.actions()
	for {
		if err := ctx.Err(); err != nil {
			return doc, r1err.Interrupted(err)
		}
		s.con.Title("Node Configuration Menu")
		for i, a := range actions {
			s.con.Linef("%d) %s", i+1, a.label)
		}
		v, err := s.con.Ask(menuLabel(len(actions)), "1")
		if err != nil {
			return doc, err
		}
		i, ok := prompt.ParseIndex(v, len(actions))
		if !ok {
			s.con.Error("Invalid choice. Please try again.")
			continue
		}
		a := actions[i]
		if a.run == nil {
			return doc, s.exit(doc)
		}
		s.log.Debug().Str("action", a.label).Msg("menu")
		next, err := a.run(ctx, doc)
		if err != nil {
			return doc, err
		}
		doc = next
		if a.durable {
			if err := s.save(doc); err != nil {
				return doc, err
			}
		}
	}
}

func (s *Session) exit(doc *inventory.Document) error {
	current, err := store.Encode(doc)
	if err != nil {
		return err
	}
	if !bytes.Equal(current, s.saved) {
		if err := s.save(doc); err != nil {
			return err
		}
	}
	s.con.Success("Configuration saved. Exiting...")
	s.con.Blank()
	s.con.Warn("Next steps:")
	s.con.Warn("1. Return to the setup menu")
	s.con.Warn("2. Run deployment:")
	s.con.Info("   - Choose option 1 for full deployment (Docker + NVIDIA drivers + GPU setup)")
	s.con.Info("   - Choose option 2 for Docker-only deployment (without GPU setup)")
	return nil
}

func (s *Session) save(doc *inventory.Document) error {
	if err := s.store.Save(doc); err != nil {
		return err
	}
	s.remember(doc)
	s.con.Success("Configuration saved to: %s", s.store.Path())
	return nil
}

func (s *Session) remember(doc *inventory.Document) {
	b, err := store.Encode(doc)
	if err != nil {
		s.log.Warn().Err(err).Msg("encode inventory")
		return
	}
	s.saved = b
}

func (s *Session) backup(ctx context.Context) error {
	target, err := s.store.BackupAndClear(ctx)
	if err != nil {
		return err
	}
	s.saved = nil
	if target != "" {
		s.con.Success("Existing configuration backed up to: %s", target)
	}
	return nil
}

func (s *Session) reportError(err error) {
	s.con.Error("Error: %v", err)
	if hint := r1err.HintOf(err); hint != "" {
		s.con.Hint("Hint: %s", hint)
	}
}

func menuLabel(n int) string {
	return fmt.Sprintf("Enter your choice (1-%d)", n)
}
