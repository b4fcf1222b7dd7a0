package store

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

// Identity is the non-elevated user that should own the inventory files.
type Identity struct {
	Name string
	UID  int
	GID  int
	Home string
}

// Owner changes the owner of a single path.
type Owner interface {
	SetOwner(path string, id Identity) error
}

// ChownOwner sets ownership with os.Lchown.
type ChownOwner struct{}

func (ChownOwner) SetOwner(path string, id Identity) error {
	return os.Lchown(path, id.UID, id.GID)
}

// SudoIdentity returns the invoking user when running under sudo, or nil.
func SudoIdentity() (*Identity, error) {
	name := os.Getenv("SUDO_USER")
	if name == "" || os.Geteuid() != 0 {
		return nil, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("lookup sudo user %s: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("parse uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("parse gid %q: %w", u.Gid, err)
	}
	return &Identity{Name: name, UID: uid, GID: gid, Home: u.HomeDir}, nil
}

// realign walks root and hands every entry to o.
func realign(o Owner, id Identity, root string) error {
	return filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := o.SetOwner(path, id); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
		return nil
	})
}
