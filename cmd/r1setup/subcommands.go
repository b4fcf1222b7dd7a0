package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	core "github.com/ratio1/r1setup/internal/core"
	r1err "github.com/ratio1/r1setup/internal/errors"
	"github.com/ratio1/r1setup/internal/prompt"
	"github.com/ratio1/r1setup/internal/session"
	gssh "github.com/ratio1/r1setup/internal/ssh"
	"github.com/ratio1/r1setup/internal/store"
)

type env struct {
	cfg core.Config
	mgr *store.Manager
}

// Resolve configuration and the inventory manager
func resolveEnv(cmd *cobra.Command) (env, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := core.LoadConfig(cfgPath)
	if err != nil {
		return env{}, err
	}
	home, err := core.RealHome()
	if err != nil {
		return env{}, fmt.Errorf("resolve home directory: %w", err)
	}
	invFlag, _ := cmd.Flags().GetString("inventory")
	path := cfg.ResolveInventoryPath(invFlag, home)

	id, err := store.SudoIdentity()
	if err != nil {
		log.Warn().Err(err).Msg("ownership fix-up disabled")
		id = nil
	}
	mgr := store.NewManager(path,
		store.WithHistoryDir(cfg.HistoryDir),
		store.WithOwner(store.ChownOwner{}, id),
		store.WithLedger(cfg.LedgerEnabled()),
	)
	log.Debug().Str("inventory", path).Str("history", mgr.HistoryDir()).Msg("resolved paths")
	return env{cfg: cfg, mgr: mgr}, nil
}

func runConfigure(cmd *cobra.Command) error {
	e, err := resolveEnv(cmd)
	if err != nil {
		return err
	}
	con := prompt.NewConsole(os.Stdin, os.Stdout)
	s := session.New(con, e.mgr, session.Options{
		DefaultKeyPath: e.cfg.DefaultKeyPath,
		InspectKey:     gssh.InspectPrivateKey,
	})
	_, err = s.Run(cmd.Context())
	return err
}

// Interactive configuration
func newConfigureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Create or edit the GPU node inventory interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure(cmd)
		},
	}
}

// Print the inventory with secrets masked
func newHostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "Show the configured hosts with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd)
			if err != nil {
				return err
			}
			doc, err := e.mgr.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			envName := string(doc.Environment)
			if doc.EnvironmentMissing {
				envName = "not set"
			}
			fmt.Fprintf(out, "inventory: %s\n", e.mgr.Path())
			fmt.Fprintf(out, "environment: %s\n", envName)
			if doc.Len() == 0 {
				fmt.Fprintln(out, "no hosts configured")
				return nil
			}
			for _, l := range doc.List() {
				fmt.Fprintf(out, "\n%s (%s)\n", l.Name, l.Mode)
				for _, f := range l.Fields {
					fmt.Fprintf(out, "  %s: %s\n", f.Key, f.Value)
				}
			}
			return nil
		},
	}
}

// List recorded backups
func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List inventory backups recorded in the history ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := os.Stat(e.mgr.LedgerPath()); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(out, "no backups recorded")
				return nil
			}
			l, err := store.OpenLedger(e.mgr.LedgerPath())
			if err != nil {
				return r1err.Filesystem("open backup ledger", e.mgr.LedgerPath(), err)
			}
			defer l.Close()
			backups, err := l.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				fmt.Fprintln(out, "no backups recorded")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tFILE\tHOSTS\tENV\tSIZE")
			for _, b := range backups {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					humanize.Time(b.CreatedAt), filepath.Base(b.Path), b.Hosts, b.Environment, humanize.Bytes(uint64(b.Size)))
			}
			return w.Flush()
		},
	}
}

// Generate an ed25519 keypair for node access
func newKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen [path]",
		Short: "Generate an ed25519 SSH keypair for GPU node access",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "~/.ssh/id_ed25519"
			if len(args) == 1 {
				path = args[0]
			}
			if home, err := core.RealHome(); err == nil && len(path) > 1 && path[:2] == "~/" {
				path = filepath.Join(home, path[2:])
			}
			comment, _ := cmd.Flags().GetString("comment")
			pub, err := gssh.GenerateEd25519Keypair(path, comment)
			if err != nil {
				return r1err.Filesystem("generate keypair", path, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "private key: %s\n", path)
			fmt.Fprintf(out, "public key:  %s.pub\n", path)
			fmt.Fprint(out, pub)
			return nil
		},
	}
	cmd.Flags().String("comment", "r1setup", "comment stored in the public key")
	return cmd
}

// Shell completion scripts
func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion script",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletion(out)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			default:
				return root.GenPowerShellCompletionWithDesc(out)
			}
		},
	}
}
