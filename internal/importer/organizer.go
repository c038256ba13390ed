package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fetcharr/fetcharr/internal/library"
)

// MoveOrganizer is a minimal file organizer that moves files into a per-target
// directory under the library root. Real deployments can swap in a richer
// renamer behind the Organizer interface.
type MoveOrganizer struct {
	root string
}

func NewMoveOrganizer(root string) *MoveOrganizer {
	return &MoveOrganizer{root: root}
}

func (o *MoveOrganizer) Place(_ context.Context, sourcePath string, target *library.Target, _ string) (string, error) {
	destDir := filepath.Join(o.root, string(target.ID))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating target directory: %w", err)
	}
	finalPath := filepath.Join(destDir, filepath.Base(sourcePath))

	if err := os.Rename(sourcePath, finalPath); err == nil {
		return finalPath, nil
	}
	// Rename fails across filesystems; fall back to copy and delete.
	if err := copyFile(sourcePath, finalPath); err != nil {
		return "", err
	}
	if err := os.Remove(sourcePath); err != nil {
		return "", fmt.Errorf("removing source after copy: %w", err)
	}
	return finalPath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copying file: %w", err)
	}
	return out.Close()
}
