package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// maxShellOutput caps captured stdout/stderr per stream.
const maxShellOutput = 10 * 1024

// shellDenyList blocks destructive command fragments. Matching is
// substring-based on the normalized command line.
var shellDenyList = []string{
	"rm -rf",
	"rm -fr",
	"mkfs",
	"dd if=",
	"shutdown",
	"reboot",
	"halt",
	":(){",
	"> /dev/sd",
	"chmod -r 777 /",
	"curl | sh",
	"wget | sh",
}

// ShellTool runs a command with a deny-list and output caps. Intended for
// the code agent only; the permission manager gates access per kind.
type ShellTool struct {
	defaultTimeout time.Duration
}

// NewShellTool creates the shell tool with the given default timeout.
func NewShellTool(defaultTimeout time.Duration) *ShellTool {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &ShellTool{defaultTimeout: defaultTimeout}
}

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Description() string {
	return "Run a shell command and return its exit code, stdout, and stderr. Destructive commands are rejected."
}

func (t *ShellTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":     map[string]any{"type": "string", "description": "Command line to run"},
			"timeout":     map[string]any{"type": "integer", "minimum": 1, "maximum": 300, "description": "Timeout in seconds"},
			"working_dir": map[string]any{"type": "string"},
		},
		"required": []any{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, _ CallContext, args map[string]any) (*models.ToolResult, error) {
	command, _ := args["command"].(string)
	if denied, fragment := isDenied(command); denied {
		return &models.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("command rejected by deny-list (matched %q)", fragment),
		}, nil
	}

	timeout := t.defaultTimeout
	if secs := intArg(args, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if dir, ok := args["working_dir"].(string); ok && dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("command failed to start: %v", err)}, nil
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return &models.ToolResult{Success: false, Error: fmt.Sprintf("command timed out after %s", timeout)}, nil
	}

	return &models.ToolResult{
		Success: exitCode == 0,
		Output: marshalOutput(map[string]any{
			"command":   command,
			"exit_code": exitCode,
			"stdout":    truncate(stdout.String(), maxShellOutput),
			"stderr":    truncate(stderr.String(), maxShellOutput),
		}),
	}, nil
}

func isDenied(command string) (bool, string) {
	normalized := strings.ToLower(strings.Join(strings.Fields(command), " "))
	for _, fragment := range shellDenyList {
		if strings.Contains(normalized, fragment) {
			return true, fragment
		}
	}
	return false, ""
}
