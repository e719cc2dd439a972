package backup

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const filePlaceholder = "{file}"

// CommandUploader uploads snapshots by running an external command such as
// `rclone copy {file} remote:catalog` or `aws s3 cp {file} s3://bucket/`.
type CommandUploader struct {
	argv []string
}

// NewCommandUploader checks that argv names an executable and mentions the
// snapshot path.
func NewCommandUploader(argv []string) (*CommandUploader, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("upload: command is empty")
	}
	found := false
	for _, a := range argv[1:] {
		if strings.Contains(a, filePlaceholder) {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("upload: command must contain %s", filePlaceholder)
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("upload: %s not found in PATH", argv[0])
	}
	return &CommandUploader{argv: argv}, nil
}

// args returns the command arguments for localPath.
func (u *CommandUploader) args(localPath string) []string {
	out := make([]string, 0, len(u.argv)-1)
	for _, a := range u.argv[1:] {
		out = append(out, strings.ReplaceAll(a, filePlaceholder, localPath))
	}
	return out
}

// UploadFile runs the upload command for localPath.
func (u *CommandUploader) UploadFile(ctx context.Context, localPath string) error {
	out, err := exec.CommandContext(ctx, u.argv[0], u.args(localPath)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("upload command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
