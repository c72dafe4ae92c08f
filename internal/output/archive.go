package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// BundleArchive writes every path into a flat zip at archivePath.
// Entries keep their base names; a repeated base name is an error.
func BundleArchive(archivePath string, paths []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		if seen[name] {
			zw.Close()
			out.Close()
			os.Remove(archivePath)
			return fmt.Errorf("duplicate archive entry %q", name)
		}
		seen[name] = true

		if err := addFile(zw, p, name); err != nil {
			zw.Close()
			out.Close()
			os.Remove(archivePath)
			return err
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return out.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to compress %s: %w", name, err)
	}
	return nil
}
