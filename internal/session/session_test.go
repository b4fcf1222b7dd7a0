package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	r1err "github.com/ratio1/r1setup/internal/errors"
	"github.com/ratio1/r1setup/internal/inventory"
	"github.com/ratio1/r1setup/internal/prompt"
	"github.com/ratio1/r1setup/internal/store"
)

type harness struct {
	path string
	mgr  *store.Manager
	out  *bytes.Buffer
	key  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	key := filepath.Join(dir, "id_test")
	require.NoError(t, os.WriteFile(key, []byte("not a real key"), 0o600))
	path := filepath.Join(dir, "inv", "hosts.yml")
	return &harness{
		path: path,
		mgr:  store.NewManager(path, store.WithLedger(false)),
		out:  &bytes.Buffer{},
		key:  key,
	}
}

func (h *harness) session(lines ...string) *Session {
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	return New(prompt.NewConsole(in, h.out), h.mgr, Options{DefaultKeyPath: h.key})
}

func (h *harness) seed(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(h.path), 0o755))
	require.NoError(t, os.WriteFile(h.path, []byte(content), 0o600))
}

func (h *harness) read(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(h.path)
	require.NoError(t, err)
	return string(b)
}

const seeded = `all:
  vars:
    mnl_app_env: mainnet
  children:
    gpu_nodes:
      hosts:
        gpu-node-1:
          ansible_host: 10.0.0.1
          ansible_user: root
          ansible_ssh_private_key_file: ~/.ssh/id_rsa
          ansible_ssh_common_args: -o StrictHostKeyChecking=no
`

func TestFirstRunConfiguresAndSaves(t *testing.T) {
	h := newHarness(t)
	s := h.session(
		"2",        // testnet
		"1",        // one node
		"",         // default name
		"10.0.0.5", // address
		"ubuntu",   // user
		"2",        // key auth
		"",         // default key path
		"y",        // summary ok
		"7",        // save and exit
	)
	doc, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inventory.Testnet, doc.Environment)
	assert.Equal(t, []string{"gpu-node-1"}, doc.Names())

	got, err := h.mgr.Load()
	require.NoError(t, err)
	host, ok := got.Get("gpu-node-1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", host.Address)
	assert.Equal(t, "ubuntu", host.User)
	assert.Equal(t, inventory.KeyAuth{KeyPath: h.key}, host.Auth)
	assert.Contains(t, h.read(t), "mnl_app_env: testnet")
	assert.Contains(t, h.out.String(), "Next steps:")
}

func TestFirstRunRetriesInvalidInput(t *testing.T) {
	h := newHarness(t)
	s := h.session(
		"1",         // mainnet
		"zero",      // not a number
		"0",         // not positive
		"1",         // one node
		"",          // default name
		"999.1.1.1", // rejected
		"10.0.0.1",
		"root",
		"1",      // password auth
		"secret", // ssh password
		"",       // become same as ssh
		"n",      // start this node over
		"10.0.0.2",
		"admin",
		"1",
		"",     // empty password rejected
		"pw",   // ssh password
		"sudo", // become password
		"y",
		"7",
	)
	doc, err := s.Run(context.Background())
	require.NoError(t, err)

	out := h.out.String()
	assert.Contains(t, out, "Please enter a valid number")
	assert.Contains(t, out, "Please enter a positive number")
	assert.Contains(t, out, "Invalid IP address format")
	assert.Contains(t, out, "Password cannot be empty")
	assert.NotContains(t, out, "secret")

	host, ok := doc.Get("gpu-node-1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", host.Address)
	assert.Equal(t, "admin", host.User)
	assert.Equal(t, inventory.PasswordAuth{SSHPassword: "pw", BecomePassword: "sudo"}, host.Auth)

	content := h.read(t)
	assert.Contains(t, content, "ansible_become_password: sudo")
	assert.NotContains(t, content, "10.0.0.1")
	assert.NotContains(t, content, "ansible_ssh_private_key_file")
}

func TestReplaceExistingBacksUp(t *testing.T) {
	h := newHarness(t)
	h.seed(t, seeded)
	s := h.session(
		"2", // create new, backup existing
		"3", // devnet
		"1",
		"",
		"10.0.0.9",
		"ubuntu",
		"2",
		"",
		"y",
		"7",
	)
	doc, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inventory.Devnet, doc.Environment)

	entries, err := os.ReadDir(h.mgr.HistoryDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "hosts-"))
	old, err := os.ReadFile(filepath.Join(h.mgr.HistoryDir(), entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, seeded, string(old))

	content := h.read(t)
	assert.Contains(t, content, "mnl_app_env: devnet")
	assert.Contains(t, content, "10.0.0.9")
	assert.NotContains(t, content, "10.0.0.1")
	assert.Contains(t, h.out.String(), "Existing configuration backed up to:")
}

func TestAbortAtLoadDecision(t *testing.T) {
	h := newHarness(t)
	h.seed(t, seeded)
	_, err := h.session("3").Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, r1err.ErrAborted))
	assert.Equal(t, r1err.ExitSuccess, r1err.ExitCode(err))
	assert.Equal(t, seeded, h.read(t))
}

func TestMalformedExitLeavesFile(t *testing.T) {
	h := newHarness(t)
	const broken = "all: [this is: not an inventory\n"
	h.seed(t, broken)
	_, err := h.session("").Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, r1err.ErrAborted))
	assert.Equal(t, broken, h.read(t))
	assert.Contains(t, h.out.String(), "Error:")
}

func TestMalformedReplaceBacksUp(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "all: 42\n")
	s := h.session("1", "1", "1", "", "10.0.0.3", "root", "2", "", "y", "7")
	doc, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpu-node-1"}, doc.Names())
	entries, err := os.ReadDir(h.mgr.HistoryDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLegacyFileRequiresEnvironment(t *testing.T) {
	h := newHarness(t)
	h.seed(t, `all:
  children:
    gpu_nodes:
      hosts:
        gpu-node-1:
          ansible_host: 10.0.0.1
          ansible_user: root
          ansible_ssh_pass: pw
          ansible_become_pass: sudo
`)
	doc, err := h.session("1", "3", "7").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inventory.Devnet, doc.Environment)
	assert.False(t, doc.EnvironmentMissing)

	content := h.read(t)
	assert.Contains(t, content, "mnl_app_env: devnet")
	assert.Contains(t, content, "ansible_become_password: sudo")
	assert.NotContains(t, content, "ansible_become_pass:")
	assert.Contains(t, h.out.String(), "Network Environment: Not set")
}

func TestKeyMissingDeclined(t *testing.T) {
	h := newHarness(t)
	missing := filepath.Join(t.TempDir(), "absent")
	s := h.session("1", "1", "", "10.0.0.1", "root", "2", missing, "n")
	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, r1err.ErrKeyMissing))
	assert.Contains(t, h.out.String(), "Key file not found: "+missing)
	assert.False(t, h.mgr.Exists())
}

func TestEndOfInputInterrupts(t *testing.T) {
	h := newHarness(t)
	s := New(prompt.NewConsole(strings.NewReader(""), h.out), h.mgr, Options{})
	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, r1err.ExitInterrupted, r1err.ExitCode(err))
}

func TestInvalidMenuChoiceShowsMenuAgain(t *testing.T) {
	h := newHarness(t)
	h.seed(t, seeded)
	_, err := h.session("1", "9", "7").Run(context.Background())
	require.NoError(t, err)
	out := h.out.String()
	assert.Contains(t, out, "Invalid choice. Please try again.")
	assert.Equal(t, 2, strings.Count(out, "Node Configuration Menu"))
}

func TestExitWithoutChangesKeepsBytes(t *testing.T) {
	h := newHarness(t)
	content := "# managed by hand\n" + seeded
	h.seed(t, content)
	_, err := h.session("1", "1", "", "7").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, content, h.read(t))
	assert.Contains(t, h.out.String(), "Host: gpu-node-1")
}

func TestMenuAddHostAppends(t *testing.T) {
	h := newHarness(t)
	h.seed(t, seeded)
	s := h.session(
		"1", // use existing
		"2", // add
		"",  // gpu-node-2
		"10.0.0.2",
		"ubuntu",
		"1",
		"pw",
		"",
		"y",
		"7",
	)
	doc, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpu-node-1", "gpu-node-2"}, doc.Names())
	host, _ := doc.Get("gpu-node-2")
	assert.Equal(t, inventory.PasswordAuth{SSHPassword: "pw", BecomePassword: "pw"}, host.Auth)

	got, err := h.mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, doc.Names(), got.Names())
	assert.NotContains(t, h.out.String(), "ansible_ssh_pass: pw")
}

func TestMenuAddExistingNameDeclined(t *testing.T) {
	h := newHarness(t)
	h.seed(t, seeded)
	doc, err := h.session("1", "2", "gpu-node-1", "n", "7").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Len())
	assert.Contains(t, h.out.String(), "Host addition cancelled.")
}

func TestMenuDeleteHost(t *testing.T) {
	h := newHarness(t)
	h.seed(t, seeded)
	doc, err := h.session("1", "4", "1", "y", "7").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Len())
	got, err := h.mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, inventory.Mainnet, got.Environment)
}

func TestMenuPickInvalidNumber(t *testing.T) {
	h := newHarness(t)
	h.seed(t, seeded)
	doc, err := h.session("1", "4", "5", "7").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Len())
	assert.Contains(t, h.out.String(), "Invalid host number")
}

func TestDeleteMissingHostLeavesDocument(t *testing.T) {
	h := newHarness(t)
	doc := inventory.New()
	host, err := inventory.NewHost("10.0.0.1", "root", inventory.KeyAuth{KeyPath: h.key})
	require.NoError(t, err)
	require.NoError(t, doc.Put("gpu-node-1", host))

	s := h.session()
	got, err := s.deleteHost(doc, "ghost")
	require.NoError(t, err)
	assert.Equal(t, []string{"gpu-node-1"}, got.Names())
	assert.Contains(t, h.out.String(), "Host 'ghost' not found")
}

func TestUpdateSwitchesAuthMode(t *testing.T) {
	h := newHarness(t)
	doc := inventory.New()
	host, err := inventory.NewHost("10.0.0.1", "root", inventory.KeyAuth{KeyPath: h.key})
	require.NoError(t, err)
	require.NoError(t, doc.Put("gpu-node-1", host))

	s := h.session(
		"3",  // authentication method
		"1",  // password
		"pw", // ssh
		"",   // become same
		"1",  // IP address
		"10.0.0.7",
		"", // save and exit
	)
	got, err := s.updateHost(doc, "gpu-node-1")
	require.NoError(t, err)
	edited, ok := got.Get("gpu-node-1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.7", edited.Address)
	assert.Equal(t, inventory.PasswordAuth{SSHPassword: "pw", BecomePassword: "pw"}, edited.Auth)

	b, err := store.Encode(got)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "ansible_ssh_private_key_file")
}

func TestChangeEnvironmentDefaultsToCurrent(t *testing.T) {
	h := newHarness(t)
	doc := inventory.New()
	require.NoError(t, doc.SetEnvironment(inventory.Devnet))
	got, err := h.session("").changeEnvironment(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, inventory.Devnet, got.Environment)
	assert.Contains(t, h.out.String(), "Current default is 'devnet'.")
}

func TestMissingGPUNodesGroupIsNotOverwritten(t *testing.T) {
	h := newHarness(t)
	const foreign = `all:
  vars:
    mnl_app_env: testnet
  children:
    workers:
      hosts:
        w1:
          ansible_host: 10.9.9.9
`
	h.seed(t, foreign)
	_, err := h.session("", "2", "1", "", "10.0.0.5", "ubuntu", "2", "", "y", "7").Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, r1err.ErrAborted))
	assert.Equal(t, foreign, h.read(t))
	_, statErr := os.Stat(h.mgr.HistoryDir())
	assert.True(t, os.IsNotExist(statErr))
	assert.Contains(t, h.out.String(), "gpu_nodes")
}

func TestCancelledContextInterrupts(t *testing.T) {
	h := newHarness(t)
	h.seed(t, seeded)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.session("3").Run(ctx)
	require.Error(t, err)
	assert.Equal(t, r1err.ExitInterrupted, r1err.ExitCode(err))
	assert.Equal(t, seeded, h.read(t))
}

func TestMenuCreateNewDeclined(t *testing.T) {
	h := newHarness(t)
	h.seed(t, seeded)
	doc, err := h.session("1", "6", "n", "7").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpu-node-1"}, doc.Names())
	assert.Contains(t, h.out.String(), "Operation cancelled.")
	_, statErr := os.Stat(h.mgr.HistoryDir())
	assert.True(t, os.IsNotExist(statErr))
	got, err := h.mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"gpu-node-1"}, got.Names())
}

func TestMenuCreateNewBacksUpAndStartsOver(t *testing.T) {
	h := newHarness(t)
	h.seed(t, seeded)
	s := h.session(
		"1", // use existing
		"6", // create new
		"y", // confirm
		"2", // testnet
		"1",
		"",
		"10.0.0.8",
		"ubuntu",
		"2",
		"",
		"y",
		"7",
	)
	doc, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inventory.Testnet, doc.Environment)
	host, ok := doc.Get("gpu-node-1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.8", host.Address)

	entries, err := os.ReadDir(h.mgr.HistoryDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	old, err := os.ReadFile(filepath.Join(h.mgr.HistoryDir(), entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, seeded, string(old))

	content := h.read(t)
	assert.Contains(t, content, "mnl_app_env: testnet")
	assert.Contains(t, content, "10.0.0.8")
	assert.NotContains(t, content, "10.0.0.1")
}

func TestKeyPathRetryThenAccepted(t *testing.T) {
	h := newHarness(t)
	missing := filepath.Join(t.TempDir(), "absent")
	s := h.session(
		"1", "1", "", "10.0.0.1", "root",
		"2",     // key auth
		missing, // not found
		"y",     // try another path
		"",      // default key path exists
		"y",
		"7",
	)
	doc, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "Key file not found: "+missing)
	host, ok := doc.Get("gpu-node-1")
	require.True(t, ok)
	assert.Equal(t, inventory.KeyAuth{KeyPath: h.key}, host.Auth)
	assert.True(t, h.mgr.Exists())
}

func TestMenuPickCancel(t *testing.T) {
	h := newHarness(t)
	h.seed(t, seeded)
	doc, err := h.session("1", "3", "c", "7").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Len())
	assert.Contains(t, h.out.String(), "Host update cancelled.")
}
