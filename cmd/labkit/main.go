// Command labkit manages the credentials and release version of a local
// data-science container and exposes the toolkit's role table.
//
// Usage:
//
//	labkit [-root dir] <command> [flags] [args]
//
// Commands:
//
//	token     generate a Jupyter token (-write stores it in .env)
//	password  generate a PostgreSQL password into .env (never printed)
//	reveal    show a stored secret, masked unless -show on a terminal
//	check     report the strength of a stored secret
//	version   current | bump <major|minor|patch> | set <X.Y.Z>
//	roles     print the role to permission table
//	run       run a command without a shell
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MrEthical07/labkit/execsafe"
	"github.com/MrEthical07/labkit/internal/bootstrap"
	"github.com/MrEthical07/labkit/internal/logging"
	"github.com/MrEthical07/labkit/internal/settings"
	"github.com/MrEthical07/labkit/release"
	"github.com/MrEthical07/labkit/secret"
	"github.com/MrEthical07/labkit/workspace"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

type cli struct {
	stdout io.Writer
	stderr io.Writer
	isTTY  func() bool

	root     string
	settings *settings.Settings
	logger   *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := &cli{
		stdout: os.Stdout,
		stderr: os.Stderr,
		isTTY:  func() bool { return term.IsTerminal(int(os.Stdout.Fd())) },
	}
	code := c.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (c *cli) run(ctx context.Context, args []string) int {
	global := flag.NewFlagSet("labkit", flag.ContinueOnError)
	global.SetOutput(c.stderr)
	root := global.String("root", ".", "project root (holds config.json, .env, version.txt)")
	global.Usage = func() {
		fmt.Fprintln(c.stderr, "usage: labkit [-root dir] <token|password|reveal|check|version|roles|run> [flags] [args]")
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	if global.NArg() == 0 {
		global.Usage()
		return exitUsage
	}

	s, err := settings.Load(*root)
	if err != nil {
		fmt.Fprintf(c.stderr, "config: %v\n", err)
		return exitFail
	}
	c.root = *root
	c.settings = s
	if c.logger == nil {
		c.logger = logging.Must(s.Log.Level, c.resolve(s.Log.File))
	}
	defer func() { _ = c.logger.Sync() }()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "token":
		return c.token(rest)
	case "password":
		return c.password(rest)
	case "reveal":
		return c.reveal(rest)
	case "check":
		return c.check(rest)
	case "version":
		return c.version(ctx, rest)
	case "roles":
		return c.roles(ctx)
	case "run":
		return c.runCommand(ctx, rest)
	default:
		fmt.Fprintf(c.stderr, "unknown command %q\n", cmd)
		global.Usage()
		return exitUsage
	}
}

// resolve makes p relative to the project root unless it is absolute or empty.
func (c *cli) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.root, p)
}

func (c *cli) envFile() string {
	return c.resolve(c.settings.Secrets.EnvFile)
}

func (c *cli) fail(err error) int {
	fmt.Fprintf(c.stderr, "error: %v\n", err)
	return exitFail
}

func (c *cli) token(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	write := fs.Bool("write", false, "store the token in the env file instead of printing it")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	tok, err := secret.JupyterToken()
	if err != nil {
		return c.fail(err)
	}
	if !*write {
		fmt.Fprintf(c.stdout, "%s=%s\n", secret.JupyterTokenKey, tok)
		return exitOK
	}
	return c.store(secret.JupyterTokenKey, tok)
}

func (c *cli) password(args []string) int {
	fs := flag.NewFlagSet("password", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	pw, err := secret.PostgresPassword()
	if err != nil {
		return c.fail(err)
	}
	return c.store(secret.PostgresPasswordKey, pw)
}

func (c *cli) store(key, value string) int {
	path := c.envFile()
	if err := secret.Upsert(path, key, value); err != nil {
		return c.fail(err)
	}
	c.logger.Info("secret stored", zap.String("key", key), zap.String("path", path))
	fmt.Fprintf(c.stdout, "%s written to %s (%d characters, %s)\n", key, path, len(value), secret.Mask(value))
	return exitOK
}

func (c *cli) reveal(args []string) int {
	fs := flag.NewFlagSet("reveal", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	key := fs.String("key", secret.JupyterTokenKey, "env key to read")
	show := fs.Bool("show", false, "print the full value (terminal only)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	v, err := secret.Lookup(c.envFile(), *key)
	if err != nil {
		return c.fail(err)
	}
	if !*show {
		fmt.Fprintf(c.stdout, "%s=%s\n", *key, secret.Mask(v))
		return exitOK
	}
	if !c.isTTY() {
		return c.fail(errors.New("refusing to print a secret: stdout is not a terminal"))
	}
	c.logger.Warn("secret revealed", zap.String("key", *key))
	fmt.Fprintln(c.stdout, v)
	return exitOK
}

func (c *cli) check(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	key := fs.String("key", secret.JupyterTokenKey, "env key to analyze")
	bytes := fs.Int("bytes", secret.CredentialBytes, "expected random bytes behind the value")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	v, err := secret.Lookup(c.envFile(), *key)
	if err != nil {
		return c.fail(err)
	}
	s := secret.Analyze(v, *bytes)

	w := c.stdout
	fmt.Fprintf(w, "%s (%s)\n", *key, secret.Mask(v))
	fmt.Fprintf(w, "  length:        %d (expected %d) %s\n", s.Length, s.ExpectedLength, mark(s.LengthOK))
	fmt.Fprintf(w, "  char classes:  %d/4 %s\n", s.CharClasses, mark(s.VarietyOK))
	fmt.Fprintf(w, "  encoding:      %s\n", mark(s.EncodingOK))
	fmt.Fprintf(w, "  repetition:    %s\n", mark(s.NoRepetition))
	fmt.Fprintf(w, "  url-safe:      %s\n", mark(s.URLSafe))
	fmt.Fprintf(w, "  entropy:       %.0f bits, %.2f bits/char (%s) %s\n", s.EntropyBits, s.EntropyPerChar, s.Level, mark(s.LevelOK))
	fmt.Fprintf(w, "  passed:        %d/%d\n", s.Passed, s.Total)
	if !s.OK() {
		return exitFail
	}
	return exitOK
}

func mark(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAIL"
}

func (c *cli) version(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	dryRun := fs.Bool("dry-run", false, "show what would change without writing")
	fs.Usage = func() {
		fmt.Fprintln(c.stderr, "usage: labkit version [-dry-run] current | bump <major|minor|patch> | set <X.Y.Z>")
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	m := release.NewManager(c.root, c.logger)
	pos := fs.Args()
	if len(pos) == 0 {
		fs.Usage()
		return exitUsage
	}

	var next release.Version
	switch {
	case pos[0] == "current" && len(pos) == 1:
		cur, err := m.Current()
		if err != nil {
			return c.fail(err)
		}
		fmt.Fprintf(c.stdout, "Current version: %s\n", cur.Tag())
		return exitOK
	case pos[0] == "bump" && len(pos) == 2:
		v, err := m.Next(pos[1])
		if err != nil {
			return c.fail(err)
		}
		next = v
	case pos[0] == "set" && len(pos) == 2:
		v, err := release.Parse(pos[1])
		if err != nil {
			return c.fail(err)
		}
		next = v
	default:
		fs.Usage()
		return exitUsage
	}

	rep, err := m.Apply(ctx, next, *dryRun)
	if err != nil {
		return c.fail(err)
	}
	prefix := ""
	if rep.DryRun {
		prefix = "[dry run] "
	}
	fmt.Fprintf(c.stdout, "%s%s -> %s\n", prefix, rep.From.Tag(), rep.To.Tag())
	for _, ch := range rep.Changes {
		fmt.Fprintf(c.stdout, "  %-12s %s\n", ch.Status, ch.Path)
	}
	return exitOK
}

func (c *cli) roles(ctx context.Context) int {
	layout, err := workspace.New(c.root, c.logger)
	if err != nil {
		return c.fail(err)
	}
	stack, err := bootstrap.Open(ctx, c.settings, layout, c.logger)
	if err != nil {
		return c.fail(err)
	}
	defer func() { _ = stack.Close() }()

	table := stack.Engine.RoleTable()
	names := make([]string, 0, len(table))
	for r := range table {
		names = append(names, r)
	}
	sort.Strings(names)
	for _, r := range names {
		fmt.Fprintf(c.stdout, "%-15s %s\n", r, strings.Join(table[r], ", "))
	}
	return exitOK
}

func (c *cli) runCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	timeout := fs.Duration("timeout", 0, "command timeout (default from exec.timeout)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	limit := c.settings.Exec.Timeout
	if *timeout > 0 {
		limit = *timeout
	}
	runner := execsafe.NewRunner(c.logger, limit)

	res, err := runner.Run(ctx, fs.Args(), execsafe.Options{Dir: c.root})
	if err != nil {
		return c.fail(err)
	}
	_, _ = io.WriteString(c.stdout, res.Stdout)
	_, _ = io.WriteString(c.stderr, res.Stderr)
	c.logger.Debug("run finished", zap.Duration("elapsed", res.Duration))
	return res.ExitCode
}
