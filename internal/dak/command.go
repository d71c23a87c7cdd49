package dak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// CommandFacade drives dak by shelling out to its command-line binary,
// the way an operator would from a terminal: one process invocation per
// import batch, combined stdout/stderr captured for diagnostics.
type CommandFacade struct {
	binary      string
	archiveRoot string
	projectName string
}

// NewCommandFacade creates a Facade that invokes the named dak binary
// against the archive rooted at archiveRoot.
func NewCommandFacade(binary, archiveRoot, projectName string) *CommandFacade {
	return &CommandFacade{binary: binary, archiveRoot: archiveRoot, projectName: projectName}
}

// ImportFiles implements Facade by running:
//
//	dak process-upload --directory <archiveRoot> --suite <suite> --component <component> [--automatic] [--allow-new] <localPaths...>
//
// dak signals a rejected package with a non-zero exit status; that is
// reported as (false, nil), not as an error. A spawn failure (binary
// missing, context canceled before start) is a real error.
func (c *CommandFacade) ImportFiles(ctx context.Context, suite, component string, localPaths []string, trusted, allowNew bool) (bool, error) {
	args := []string{
		"process-upload",
		"--directory", c.archiveRoot,
		"--suite", suite,
		"--component", component,
	}
	if trusted {
		args = append(args, "--automatic")
	}
	if allowNew {
		args = append(args, "--allow-new")
	}
	args = append(args, localPaths...)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			slog.Warn("dak rejected import", "suite", suite, "component", component, "files", localPaths, "output", output.String())
			return false, nil
		}
		return false, fmt.Errorf("running dak %s: %w: %s", args[0], err, output.String())
	}

	return true, nil
}
