package engine

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/phayes/freeport"
	"go.uber.org/zap"

	"github.com/ormasoftchile/toolproof/pkg/browser"
	"github.com/ormasoftchile/toolproof/pkg/errs"
)

// commandTimeout is the hard wall-clock cap on child commands, inside the
// per-step timeout.
const commandTimeout = 30 * time.Second

// CommandOutput is the captured output of the last command, ANSI-stripped
// and decoded as UTF-8.
type CommandOutput struct {
	Stdout string
	Stderr string
}

// Civilization is the per-test sandbox: a lazy temp directory, a lazy
// server port, an environment map for child processes, the test's browser
// window, and every server and background task the test started. Exactly
// one task owns a civilization; Shutdown releases everything on both
// success and failure paths.
type Civilization struct {
	Universe *Universe

	LastCommandOutput *CommandOutput
	Window            browser.Window
	EnvVars           map[string]string

	tmpDir       string
	assignedPort int

	servers []interface{ Shutdown() }
	tasks   []context.CancelFunc
	taskWG  sync.WaitGroup

	shutdownOnce sync.Once
}

// NewCivilization prepares an empty sandbox bound to the universe.
func NewCivilization(u *Universe) *Civilization {
	return &Civilization{
		Universe: u,
		EnvVars:  map[string]string{},
	}
}

// TmpDir returns the test's temp directory, creating it on first use.
func (c *Civilization) TmpDir() (string, error) {
	if c.tmpDir == "" {
		dir, err := os.MkdirTemp("", "toolproof-")
		if err != nil {
			return "", errs.Internal(fmt.Errorf("create temp directory: %w", err))
		}
		c.tmpDir = dir
	}
	return c.tmpDir, nil
}

// TmpDirIfCreated returns the temp directory only if a step has already
// materialized it. The toolproof_test_directory placeholder keys off this.
func (c *Civilization) TmpDirIfCreated() string {
	return c.tmpDir
}

// TmpFilePath joins filename under the temp directory.
func (c *Civilization) TmpFilePath(filename string) (string, error) {
	dir, err := c.TmpDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(filename)), nil
}

// EnsurePort picks an unused TCP port on first call and memoizes it.
func (c *Civilization) EnsurePort() (int, error) {
	if c.assignedPort == 0 {
		port, err := freeport.GetFreePort()
		if err != nil {
			return 0, errs.Internal(fmt.Errorf("pick unused port: %w", err))
		}
		c.assignedPort = port
	}
	return c.assignedPort, nil
}

// PurgePort forgets the assigned port so a retry can pick another.
func (c *Civilization) PurgePort() {
	c.assignedPort = 0
}

// RegisterServer records a server handle for teardown.
func (c *Civilization) RegisterServer(s interface{ Shutdown() }) {
	c.servers = append(c.servers, s)
}

// SpawnTask runs fn as a background task owned by this civilization. The
// task's context is canceled at shutdown.
func (c *Civilization) SpawnTask(fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	c.tasks = append(c.tasks, cancel)
	c.taskWG.Add(1)
	go func() {
		defer c.taskWG.Done()
		fn(ctx)
	}()
}

// SetEnv stores an environment variable applied to child commands. The
// parent process environment is never mutated.
func (c *Civilization) SetEnv(name, value string) {
	c.EnvVars[name] = value
}

// WriteFile creates parent directories and overwrites filename under the
// temp directory.
func (c *Civilization) WriteFile(filename, contents string) error {
	path, err := c.TmpFilePath(filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errs.Internal(fmt.Errorf("create directories for %s: %w", filename, err))
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		return errs.Internal(fmt.Errorf("write %s: %w", filename, err))
	}
	return nil
}

// ReadFile returns the UTF-8 contents of filename under the temp
// directory, distinguishing missing, unreadable, and non-UTF-8 files.
func (c *Civilization) ReadFile(filename string) (string, error) {
	path, err := c.TmpFilePath(filename)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.Assertionf("the file does not exist")
		}
		return "", errs.Assertionf("the file was not readable")
	}
	if !utf8.Valid(data) {
		return "", errs.Assertionf("the file was not valid UTF-8")
	}
	return string(data), nil
}

// FileExists reports whether filename exists under the temp directory.
func (c *Civilization) FileExists(filename string) bool {
	path, err := c.TmpFilePath(filename)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// FileTree renders an indented listing of the temp directory for
// diagnostics.
func (c *Civilization) FileTree() string {
	if c.tmpDir == "" {
		return ""
	}
	var entries []string
	_ = filepath.WalkDir(c.tmpDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == c.tmpDir {
			return nil
		}
		rel, relErr := filepath.Rel(c.tmpDir, path)
		if relErr != nil {
			return nil
		}
		depth := strings.Count(filepath.ToSlash(rel), "/")
		entries = append(entries, fmt.Sprintf("| %s%s", strings.Repeat("  ", depth), d.Name()))
		return nil
	})
	return strings.Join(entries, "\n")
}

// RunCommand spawns cmd through a POSIX shell in the temp directory with
// the civilization's environment applied. Output streams are captured,
// ANSI-stripped, and stored for the stdout/stderr retrievers; the exit
// code is returned. A command that outlives the 30-second cap is
// abandoned, not killed.
func (c *Civilization) RunCommand(ctx context.Context, cmdStr string) (int, error) {
	dir, err := c.TmpDir()
	if err != nil {
		return 0, err
	}

	// Tests write commands with forward slashes; keep them portable by
	// normalizing the host separator.
	shellCmd := strings.ReplaceAll(cmdStr, string(os.PathSeparator), "/")

	cmd := exec.Command("sh", "-c", shellCmd)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin

	env := os.Environ()
	for k, v := range c.EnvVars {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.Universe.Log.Debug("running command", zap.String("command", cmdStr), zap.String("dir", dir))

	if err := cmd.Start(); err != nil {
		return 0, errs.Assertionf("failed to run command: %s", cmdStr)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		return 0, errs.Assertionf("failed to run command due to timeout: %s", cmdStr)
	case <-time.After(commandTimeout):
		return 0, errs.Assertionf("failed to run command due to timeout: %s", cmdStr)
	case waitErr := <-done:
		exitCode := 0
		if waitErr != nil {
			exitErr, ok := waitErr.(*exec.ExitError)
			if !ok {
				return 0, errs.Assertionf("failed to run command: %s", cmdStr)
			}
			exitCode = exitErr.ExitCode()
		}

		c.LastCommandOutput = &CommandOutput{
			Stdout: decodeStream(stdout.Bytes()),
			Stderr: decodeStream(stderr.Bytes()),
		}
		return exitCode, nil
	}
}

// decodeStream strips ANSI escapes and decodes UTF-8, substituting the
// sentinel on invalid input.
func decodeStream(data []byte) string {
	stripped := ansi.Strip(string(data))
	if !utf8.ValidString(stripped) {
		return "failed utf8"
	}
	return stripped
}

// Shutdown releases everything the test acquired: servers stop without
// draining, background tasks are canceled, the browser window closes, and
// the temp directory is removed. Safe to call on an unused civilization
// and idempotent.
func (c *Civilization) Shutdown() {
	c.shutdownOnce.Do(func() {
		for _, s := range c.servers {
			s.Shutdown()
		}
		for _, cancel := range c.tasks {
			cancel()
		}
		c.taskWG.Wait()
		if c.Window != nil {
			if err := c.Window.Close(); err != nil {
				c.Universe.Log.Debug("closing browser window", zap.Error(err))
			}
			c.Window = nil
		}
		if c.tmpDir != "" {
			_ = os.RemoveAll(c.tmpDir)
			c.tmpDir = ""
		}
	})
}
