package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dailypost/internal/core/domain"
)

// Exit codes the browser driver uses to report classified failures.
const (
	ExitUIError        = 2
	ExitTimeout        = 3
	ExitSessionExpired = 4
)

// BrowserGenerator runs an external browser-automation driver that types the prompt into the
// generation UI and saves the resulting image. It owns one persistent browser profile.
type BrowserGenerator struct {
	command    []string
	profileDir string
	headless   bool
	debugDir   string
}

type BrowserOptions struct {
	Command    []string
	ProfileDir string
	Headless   bool
	DebugDir   string
}

// NewBrowserGenerator creates a generator around opts.Command (binary followed by fixed args).
func NewBrowserGenerator(opts BrowserOptions) (*BrowserGenerator, error) {
	if len(opts.Command) == 0 || strings.TrimSpace(opts.Command[0]) == "" {
		return nil, errors.New("browser driver command is empty")
	}
	return &BrowserGenerator{
		command:    append([]string(nil), opts.Command...),
		profileDir: opts.ProfileDir,
		headless:   opts.Headless,
		debugDir:   opts.DebugDir,
	}, nil
}

// Acquire runs the driver once with a deadline of waitBudget.
func (g *BrowserGenerator) Acquire(ctx context.Context, prompt string, waitBudget time.Duration) (domain.RawAsset, error) {
	if strings.TrimSpace(prompt) == "" {
		return domain.RawAsset{}, errors.New("prompt is empty")
	}
	if waitBudget <= 0 {
		waitBudget = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, waitBudget)
	defer cancel()

	workDir, err := os.MkdirTemp("", "dailypost-gen-*")
	if err != nil {
		return domain.RawAsset{}, fmt.Errorf("create driver work dir: %w", err)
	}
	defer os.RemoveAll(workDir)
	outPath := filepath.Join(workDir, "raw.png")

	args := append([]string(nil), g.command[1:]...)
	args = append(args,
		"--prompt", prompt,
		"--out", outPath,
		"--profile-dir", g.profileDir,
		"--headless="+strconv.FormatBool(g.headless),
		"--timeout", strconv.FormatInt(waitBudget.Milliseconds(), 10),
	)
	if g.debugDir != "" {
		args = append(args, "--debug-dir", g.debugDir)
	}
	cmd := exec.CommandContext(ctx, g.command[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		return domain.RawAsset{}, classifyDriverError(ctx, err, stderr.String())
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return domain.RawAsset{}, fmt.Errorf("%w: driver exited cleanly but wrote no asset: %v", domain.ErrAcquireUI, err)
	}
	return describe(data, "browser"), nil
}

func classifyDriverError(ctx context.Context, err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: driver did not finish in budget", domain.ErrAcquireTimeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case ExitUIError:
			return fmt.Errorf("%w: %s", domain.ErrAcquireUI, detail)
		case ExitTimeout:
			return fmt.Errorf("%w: %s", domain.ErrAcquireTimeout, detail)
		case ExitSessionExpired:
			return fmt.Errorf("%w: %s", domain.ErrSessionExpired, detail)
		}
	}
	return fmt.Errorf("browser driver failed: %w, stderr: %s", err, detail)
}
