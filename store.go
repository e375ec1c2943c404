package vnodefs

import (
	"os"

	"github.com/elliotcourant/vnodefs/descriptor"
	"github.com/elliotcourant/vnodefs/internal/z"
)

// StoreManifest implements spec.md §4.D's atomic publish: encode, write to
// the staging path, fsync, close, rename over the final path, then fsync the
// containing directory so the rename itself survives a crash. Modeled on
// helpRewrite in the teacher's manifest.go, trimmed to the two-file
// CURRENT/CURRENT.t scheme this manager uses instead of a rewrite-threshold
// append log.
func StoreManifest(dir string, m *Manifest) error {
	n, err := m.Encode(nil)
	if err != nil {
		return err
	}
	buf := make([]byte, n)
	if _, err := m.Encode(buf); err != nil {
		return err
	}

	stagingPath := descriptor.StagingPath(dir)
	f, err := z.OpenTruncFile(stagingPath, false)
	if err != nil {
		return errIo(err, "store: opening staging file %q", stagingPath)
	}

	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return errIo(err, "store: writing staging file %q", stagingPath)
	}

	if err := z.FileSync(f); err != nil {
		_ = f.Close()
		return errIo(err, "store: syncing staging file %q", stagingPath)
	}

	if err := f.Close(); err != nil {
		return errIo(err, "store: closing staging file %q", stagingPath)
	}

	manifestPath := descriptor.ManifestPath(dir)
	if err := os.Rename(stagingPath, manifestPath); err != nil {
		return errIo(err, "store: renaming %q to %q", stagingPath, manifestPath)
	}

	if err := z.SyncDir(dir); err != nil {
		return errIo(err, "store: syncing directory %q", dir)
	}

	return nil
}

// LoadManifest reads and decodes the manifest at <dir>/CURRENT. It is the
// inverse of StoreManifest, the same pairing ReplayManifestFile/helpRewrite
// form for the teacher. The file is memory-mapped rather than read into a
// freshly allocated buffer, the way table.OpenTable maps an sstable instead
// of copying it in: Decode only ever reads scalar fields out of the mapping
// into the Manifest it builds, so the mapping can be torn down again before
// LoadManifest returns.
func LoadManifest(dir string) (*Manifest, error) {
	path := descriptor.ManifestPath(dir)
	f, err := z.OpenExistingFile(path, z.ReadOnly)
	if err != nil {
		return nil, errIo(err, "store: opening manifest %q", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errIo(err, "store: statting manifest %q", path)
	}

	mapped, err := z.Mmap(f, info.Size())
	if err != nil {
		return nil, errIo(err, "store: mapping manifest %q", path)
	}
	defer z.Munmap(mapped)

	return Decode(mapped)
}

// manifestExists reports whether <dir>/CURRENT is present, the test open.go
// uses to distinguish a fresh vnode from one being reopened.
func manifestExists(dir string) (bool, error) {
	_, err := os.Stat(descriptor.ManifestPath(dir))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errIo(err, "store: statting manifest in %q", dir)
}

// stagingExists reports whether <dir>/CURRENT.t is present, signalling an
// interrupted phase 1 per spec.md §4.H's rollback note.
func stagingExists(dir string) (bool, error) {
	_, err := os.Stat(descriptor.StagingPath(dir))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errIo(err, "store: statting staging file in %q", dir)
}
