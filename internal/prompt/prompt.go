// Package prompt is the line-oriented terminal surface of r1setup: free-text
// prompts with defaults, numbered menus, and no-echo secret input.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	r1err "github.com/ratio1/r1setup/internal/errors"
)

// Console reads answers from in and writes prompts to out. A read in
// progress returns an Interrupted error once the bound context is done.
type Console struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	styles styles
	ctx    context.Context
	// pending is a line read that outlived an earlier call.
	pending chan lineResult
}

type lineResult struct {
	line string
	err  error
}

type styles struct {
	title   lipgloss.Style
	prompt  lipgloss.Style
	info    lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	faint   lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		title:   r.NewStyle().Foreground(lipgloss.Color("14")).Bold(true),
		prompt:  r.NewStyle().Foreground(lipgloss.Color("12")),
		info:    r.NewStyle().Foreground(lipgloss.Color("14")),
		success: r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("11")),
		err:     r.NewStyle().Foreground(lipgloss.Color("9")),
		faint:   r.NewStyle().Faint(true),
	}
}

// NewConsole returns a Console over in and out. Secrets are read without echo
// when in is a terminal, and as plain lines otherwise.
func NewConsole(in io.Reader, out io.Writer) *Console {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Console{
		in:     bufio.NewReader(in),
		out:    out,
		fd:     fd,
		styles: newStyles(out),
		ctx:    context.Background(),
	}
}

// SetContext binds reads to ctx.
func (c *Console) SetContext(ctx context.Context) {
	c.ctx = ctx
}

func (c *Console) readLine() (string, error) {
	line, err := c.readRaw()
	return strings.TrimSpace(line), err
}

// readRaw returns one line without its line terminator.
func (c *Console) readRaw() (string, error) {
	if err := c.ctx.Err(); err != nil {
		return "", r1err.Interrupted(err)
	}
	if c.pending == nil {
		ch := make(chan lineResult, 1)
		go func() {
			line, err := c.in.ReadString('\n')
			ch <- lineResult{line: line, err: err}
		}()
		c.pending = ch
	}
	select {
	case r := <-c.pending:
		c.pending = nil
		if r.err != nil && !(errors.Is(r.err, io.EOF) && r.line != "") {
			return "", r1err.Interrupted(r.err)
		}
		return strings.TrimSuffix(strings.TrimSuffix(r.line, "\n"), "\r"), nil
	case <-c.ctx.Done():
		return "", r1err.Interrupted(c.ctx.Err())
	}
}

// Ask prints label and returns the trimmed answer, or def when blank.
func (c *Console) Ask(label, def string) (string, error) {
	p := label
	if def != "" {
		p = fmt.Sprintf("%s [%s]", label, def)
	}
	fmt.Fprint(c.out, c.styles.prompt.Render(p+": "))
	v, err := c.readLine()
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

// Secret prints label and reads a value without echoing it. The value is
// returned as typed, surrounding spaces included. The terminal state is
// restored when the read is interrupted.
func (c *Console) Secret(label string) (string, error) {
	fmt.Fprint(c.out, c.styles.prompt.Render(label+": "))
	if c.fd < 0 {
		return c.readRaw()
	}
	if err := c.ctx.Err(); err != nil {
		return "", r1err.Interrupted(err)
	}
	state, err := term.GetState(c.fd)
	if err != nil {
		return "", r1err.Interrupted(err)
	}
	ch := make(chan lineResult, 1)
	go func() {
		b, err := term.ReadPassword(c.fd)
		ch <- lineResult{line: string(b), err: err}
	}()
	select {
	case r := <-ch:
		fmt.Fprintln(c.out)
		if r.err != nil {
			return "", r1err.Interrupted(r.err)
		}
		return r.line, nil
	case <-c.ctx.Done():
		_ = term.Restore(c.fd, state)
		fmt.Fprintln(c.out)
		return "", r1err.Interrupted(c.ctx.Err())
	}
}

func (c *Console) Title(format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.styles.title.Render(text))
	fmt.Fprintln(c.out, c.styles.title.Render(strings.Repeat("=", lipgloss.Width(text))))
}

func (c *Console) Info(format string, args ...interface{}) {
	fmt.Fprintln(c.out, c.styles.info.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) Success(format string, args ...interface{}) {
	fmt.Fprintln(c.out, c.styles.success.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) Warn(format string, args ...interface{}) {
	fmt.Fprintln(c.out, c.styles.warn.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) Error(format string, args ...interface{}) {
	fmt.Fprintln(c.out, c.styles.err.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) Hint(format string, args ...interface{}) {
	fmt.Fprintln(c.out, c.styles.faint.Render(fmt.Sprintf(format, args...)))
}

// Linef writes an unstyled line.
func (c *Console) Linef(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Blank writes an empty line.
func (c *Console) Blank() {
	fmt.Fprintln(c.out)
}

// Required asks until a non-blank answer is given.
func (c *Console) Required(label, def string) (string, error) {
	for {
		v, err := c.Ask(label, def)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(v) != "" {
			return v, nil
		}
		c.Error("This field cannot be empty. Please try again.")
	}
}

// Confirm asks a y/n question. Anything other than y/yes is no.
func (c *Console) Confirm(label string, def bool) (bool, error) {
	d := "n"
	if def {
		d = "y"
	}
	v, err := c.Ask(label+" (y/n)", d)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(v) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Choose shows a numbered menu and returns the zero-based index of the
// selection, re-asking until the answer is in range. def is zero-based.
func (c *Console) Choose(title string, options []string, def int) (int, error) {
	fmt.Fprintln(c.out)
	c.Info("%s", title)
	for i, o := range options {
		c.Linef("%d) %s", i+1, o)
	}
	label := fmt.Sprintf("Enter your choice (1-%d)", len(options))
	for {
		v, err := c.Ask(label, fmt.Sprint(def+1))
		if err != nil {
			return 0, err
		}
		if n, ok := ParseIndex(v, len(options)); ok {
			return n, nil
		}
		c.Error("Invalid choice. Please enter a number between 1 and %d", len(options))
	}
}

// PositiveInt asks until a number greater than zero is given.
func (c *Console) PositiveInt(label string) (int, error) {
	for {
		v, err := c.Ask(label, "")
		if err != nil {
			return 0, err
		}
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil || fmt.Sprint(n) != v {
			c.Error("Please enter a valid number")
			continue
		}
		if n <= 0 {
			c.Error("Please enter a positive number")
			continue
		}
		return n, nil
	}
}

// Pause waits for Enter.
func (c *Console) Pause() error {
	fmt.Fprintln(c.out)
	fmt.Fprint(c.out, c.styles.faint.Render("Press Enter to continue..."))
	_, err := c.readLine()
	return err
}

// ParseIndex converts a 1-based answer into a 0-based index below n.
func ParseIndex(v string, n int) (int, bool) {
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil || fmt.Sprint(i) != v {
		return 0, false
	}
	if i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}
