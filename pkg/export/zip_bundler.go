package export

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// BundleEntry is one named file inside a zip bundle.
type BundleEntry struct {
	Name string
	Data []byte
}

// ZIPBundler packs rendered artifacts into a single archive.
type ZIPBundler struct{}

// NewZIPBundler builds a zip bundler.
func NewZIPBundler() *ZIPBundler {
	return &ZIPBundler{}
}

// Bundle writes every entry into one zip archive. Entry names must be
// unique relative paths.
func (b *ZIPBundler) Bundle(entries []BundleEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("zip requires at least one entry")
	}
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for _, entry := range entries {
		if entry.Name == "" {
			return nil, fmt.Errorf("zip entry without a name")
		}
		f, err := w.Create(entry.Name)
		if err != nil {
			return nil, fmt.Errorf("create zip entry %s: %w", entry.Name, err)
		}
		if _, err := f.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("write zip entry %s: %w", entry.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}
