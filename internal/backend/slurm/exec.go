package slurm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/slok/sweep/internal/model"
)

// ExecClient is a Client that runs the Slurm commands on the local machine,
// used when sweep runs on a cluster login node.
type ExecClient struct {
	// Shell used to run the commands, by default `/bin/sh`.
	Shell string
}

// Output satisfies Client interface.
func (e ExecClient) Output(ctx context.Context, command string) (string, error) {
	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("command %q failed: %w: %s", command, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// WriteFile satisfies Client interface.
func (ExecClient) WriteFile(_ context.Context, dst string, data []byte, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("could not create directory: %w", err)
	}
	if err := os.WriteFile(dst, data, perm); err != nil {
		return fmt.Errorf("could not write file: %w", err)
	}
	return os.Chmod(dst, perm)
}

// ReadFileFrom satisfies Client interface.
func (ExecClient) ReadFileFrom(_ context.Context, src string, offset int64) ([]byte, error) {
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", src, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("could not seek file: %w", err)
	}

	return io.ReadAll(io.LimitReader(f, maxReadChunk))
}

const maxReadChunk = 1 << 20
