package fsutil

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadFileUnder reads name from inside dir without letting the open escape
// it. Stored file names come from ledger rows, so the read stays confined
// to the store's directory even if a row carries a doctored path.
func ReadFileUnder(dir, name string) ([]byte, error) {
	if name == "" || name == "." || strings.ContainsRune(name, os.PathSeparator) {
		return nil, fmt.Errorf("invalid stored file name: %q", name)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}
