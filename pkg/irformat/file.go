package irformat

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ReadFile loads the whole library at path.
func ReadFile(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadLibrary(f)
}

// WriteFile writes lib to path through a temporary file in the same
// directory, so readers never observe a partial library.
func WriteFile(path string, lib *Library) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".irlib-*")
	if err != nil {
		return fmt.Errorf("irformat: %w", err)
	}

	if err := WriteLibrary(tmp, lib); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("irformat: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("irformat: %w", err)
	}

	return nil
}

// Upsert adds ir to the library at path, creating the file if needed and
// replacing an entry of the same name.
func Upsert(path string, ir *ImpulseResponse) error {
	lib, err := ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		lib, err = NewLibrary(), nil
	}

	if err != nil {
		return err
	}

	lib.Add(ir)

	return WriteFile(path, lib)
}
