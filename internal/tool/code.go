package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/zapagent/zapagent/internal/log"
)

const (
	codeDefaultTimeout = 15 * time.Second
	codeMaxOutput      = 256 << 10
)

// CodeConfig declares a script tool. The script runs in a fresh scratch
// directory with a scrubbed environment and receives the JSON-encoded call
// arguments on stdin. Nothing survives between invocations.
type CodeConfig struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema

	// Interpreter and InterpreterArgs form the command line; the script
	// file path is appended. Defaults to /bin/sh.
	Interpreter     string
	InterpreterArgs []string

	// Script is the program text, written to the scratch dir per call.
	Script string

	Timeout   time.Duration
	MaxOutput int
}

// Code executes short scripts in a throwaway sandbox.
type Code struct {
	cfg    CodeConfig
	logger log.Logger
}

// NewCode creates a code tool.
func NewCode(cfg CodeConfig, logger log.Logger) *Code {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "/bin/sh"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = codeDefaultTimeout
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = codeMaxOutput
	}
	return &Code{cfg: cfg, logger: logger.With("tool", cfg.Name)}
}

func (c *Code) Definition() Definition {
	return Definition{Name: c.cfg.Name, Description: c.cfg.Description, Schema: c.cfg.Schema}
}

func (c *Code) Invoke(ctx context.Context, call Call, _ RunContext) Result {
	scratch, err := os.MkdirTemp("", "zapagent-tool-*")
	if err != nil {
		return Failure("create scratch dir: %v", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			c.logger.Warn("scratch dir cleanup failed", "dir", scratch, "error", err)
		}
	}()

	scriptPath := filepath.Join(scratch, "script")
	if err := os.WriteFile(scriptPath, []byte(c.cfg.Script), 0o500); err != nil {
		return Failure("write script: %v", err)
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	stdin, err := json.Marshal(args)
	if err != nil {
		return Failure("encode arguments: %v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	argv := append(append([]string{}, c.cfg.InterpreterArgs...), scriptPath)
	cmd := exec.CommandContext(runCtx, c.cfg.Interpreter, argv...)
	cmd.Dir = scratch
	// Scrubbed environment: no inherited secrets, no user paths
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + scratch,
		"TMPDIR=" + scratch,
	}
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, n: c.cfg.MaxOutput}
	cmd.Stderr = &limitedWriter{w: &stderr, n: c.cfg.MaxOutput}

	err = cmd.Run()
	if runCtx.Err() != nil {
		return Failure("script timed out after %s", c.cfg.Timeout)
	}
	if err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return Failure("script failed: %s", msg)
	}

	return Success(stdout.String())
}

// limitedWriter caps captured output; excess is silently discarded.
type limitedWriter struct {
	w interface{ Write([]byte) (int, error) }
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		// Report success so the script keeps running; we just stop keeping
		// its output.
		return len(p), nil
	}
	if len(p) > l.n {
		p = p[:l.n]
	}
	n, err := l.w.Write(p)
	l.n -= n
	if err != nil {
		return n, err
	}
	return len(p), nil
}
