// Package spool stages successful batch payloads on disk for the packaging
// collaborator. Each batch gets its own directory named by batch id.
package spool

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

type spoolAdapter struct {
	fs   afero.Fs
	root string
	log  *slog.Logger
}

func NewSpoolAdapter(root string, log *slog.Logger) *spoolAdapter {
	return NewSpoolAdapterWithFS(afero.NewOsFs(), root, log)
}

func NewSpoolAdapterWithFS(fs afero.Fs, root string, log *slog.Logger) *spoolAdapter {
	return &spoolAdapter{
		fs:   fs,
		root: root,
		log:  log.With(slog.String("item", "SpoolAdapter")),
	}
}

func (a *spoolAdapter) Store(_ context.Context, batchID, filename string, payload []byte) error {
	dir := filepath.Join(a.root, batchID)
	if err := a.fs.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("cannot create spool dir: %w", err)
	}

	// Filenames are already sanitized upstream; Base guards the spool
	// against anything slipping through with a separator in it.
	path := filepath.Join(dir, filepath.Base(filename))
	if err := afero.WriteFile(a.fs, path, payload, filePerm); err != nil {
		return fmt.Errorf("cannot write payload: %w", err)
	}

	a.log.Debug("Payload spooled", slog.String("path", path), slog.Int("size", len(payload)))

	return nil
}
