// Package datadir manages the local directory that mirrors the catalog, one file per dataset id.
package datadir

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var ErrInvalidID = errors.New("invalid dataset id")

type DataDir struct {
	fs   afero.Fs
	root string
}

func New(fs afero.Fs, root string) *DataDir {
	return &DataDir{
		fs:   fs,
		root: filepath.Clean(root),
	}
}

func (d *DataDir) Fs() afero.Fs {
	return d.fs
}

func (d *DataDir) Root() string {
	return d.root
}

// Ensure creates the directory if it does not exist.
func (d *DataDir) Ensure() error {
	if err := d.fs.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("cannot create data dir %s: %w", d.root, err)
	}

	return nil
}

// Path returns the file path of the dataset. Ids that would escape the
// directory are rejected.
func (d *DataDir) Path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	return filepath.Join(d.root, id), nil
}

// Remove deletes the dataset file. A missing file is not an error.
func (d *DataDir) Remove(id string) error {
	path, err := d.Path(id)
	if err != nil {
		return err
	}

	if err := d.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot remove %s: %w", path, err)
	}

	return nil
}

func (d *DataDir) Exists(id string) (bool, error) {
	path, err := d.Path(id)
	if err != nil {
		return false, err
	}

	return afero.Exists(d.fs, path)
}
