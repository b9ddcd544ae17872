package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// configEntryName and dbEntryName are the fixed tar entry names used for a
// library's config and database files inside the tar.gz payload.
const (
	configEntryName = "library.sdlibrary"
	dbEntryName     = "library.db"
)

// Create writes a complete backup archive to dest: the Header followed by a
// tar.gz payload containing the library's config file and database file.
func Create(dest io.Writer, header Header, configPath, dbPath string) error {
	if err := header.Write(dest); err != nil {
		return err
	}

	gz := gzip.NewWriter(dest)
	tw := tar.NewWriter(gz)

	if err := appendFile(tw, configEntryName, configPath); err != nil {
		return fmt.Errorf("backup: appending library config: %w", err)
	}
	if err := appendFile(tw, dbEntryName, dbPath); err != nil {
		return fmt.Errorf("backup: appending library database: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("backup: closing tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("backup: closing gzip writer: %w", err)
	}
	return nil
}

func appendFile(tw *tar.Writer, entryName, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("unable to stat %s: %w", path, err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name: entryName,
		Mode: 0600,
		Size: info.Size(),
	}); err != nil {
		return fmt.Errorf("unable to write tar header for %s: %w", entryName, err)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer file.Close()
	if _, err := io.Copy(tw, file); err != nil {
		return fmt.Errorf("unable to copy %s into archive: %w", path, err)
	}
	return nil
}

// LibraryRegistry is the subset of the library manager a restore needs:
// checking whether a library id is already present, and registering a
// newly restored one.
type LibraryRegistry interface {
	Exists(libraryID uuid.UUID) bool
	Register(libraryID uuid.UUID, configPath, dbPath string) error
}

// ErrLibraryAlreadyExists is returned by Restore when the backup's library
// id is already present in the registry, per spec.md §4.10: "refuse if
// already present."
var ErrLibraryAlreadyExists = fmt.Errorf("backup: library already exists")

// Restore reads a backup archive from src, refuses to proceed if its
// library id is already registered, extracts the payload into a scratch
// directory under scratchParent, copies the config and database files into
// librariesDir named after the library id, and registers the restored
// library. It returns the parsed Header on success.
func Restore(src io.Reader, librariesDir, scratchParent string, registry LibraryRegistry) (Header, error) {
	header, err := ReadHeader(src)
	if err != nil {
		return header, err
	}

	if registry.Exists(header.LibraryID) {
		return header, ErrLibraryAlreadyExists
	}

	scratchDir, err := os.MkdirTemp(scratchParent, "sdcore-restore-*")
	if err != nil {
		return header, fmt.Errorf("backup: creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	if err := extract(src, scratchDir); err != nil {
		return header, fmt.Errorf("backup: extracting payload: %w", err)
	}

	if err := os.MkdirAll(librariesDir, 0700); err != nil {
		return header, fmt.Errorf("backup: creating libraries directory: %w", err)
	}

	configPath := filepath.Join(librariesDir, header.LibraryID.String()+".sdlibrary")
	if err := copyFile(filepath.Join(scratchDir, configEntryName), configPath); err != nil {
		return header, fmt.Errorf("backup: restoring library config: %w", err)
	}

	dbPath := filepath.Join(librariesDir, header.LibraryID.String()+".db")
	if err := copyFile(filepath.Join(scratchDir, dbEntryName), dbPath); err != nil {
		return header, fmt.Errorf("backup: restoring library database: %w", err)
	}

	if err := registry.Register(header.LibraryID, configPath, dbPath); err != nil {
		return header, fmt.Errorf("backup: registering restored library: %w", err)
	}

	return header, nil
}

// extract unpacks the tar.gz payload in r into dir. Entry names are
// restricted to the fixed set this package writes, so there is no
// traversal risk from path-containing entry names.
func extract(r io.Reader, dir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("unable to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("unable to read tar entry: %w", err)
		}
		if hdr.Name != configEntryName && hdr.Name != dbEntryName {
			continue
		}
		destPath := filepath.Join(dir, filepath.Base(hdr.Name))
		out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("unable to create %s: %w", destPath, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("unable to extract %s: %w", hdr.Name, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("unable to close %s: %w", destPath, err)
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("unable to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
