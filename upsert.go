package vnodefs

import (
	"github.com/elliotcourant/vnodefs/config"
	"github.com/elliotcourant/vnodefs/descriptor"
)

// UpsertFileSet inserts s into m, or merges it into the existing file set
// sharing its Fid, preserving the manifest's strictly-ascending-by-Fid
// order (spec.md §4.G). It operates purely in memory, building a *proposed*
// manifest for the commit engine; every descriptor it installs is a deep
// clone with ref=1; it never touches an existing descriptor owned by a
// live, committed manifest.
func UpsertFileSet(m *Manifest, s *FileSet) error {
	i, found := m.find(s.Fid)
	if !found {
		if err := validateSttTransition(0, s.NStt); err != nil {
			return err
		}
		m.insertFileSet(i, s.clone())
		return nil
	}

	existing := m.FileSets[i]
	if err := validateSttTransition(existing.NStt, s.NStt); err != nil {
		return err
	}

	existing.Head = s.Head.Clone()
	existing.Data = s.Data.Clone()
	existing.Sma = s.Sma.Clone()

	existing.NStt = s.NStt
	for j := 0; j < s.NStt; j++ {
		existing.Stt[j] = s.Stt[j].Clone()
	}
	for j := s.NStt; j < config.MaxStt; j++ {
		existing.Stt[j] = nil
	}

	return nil
}

// UpsertDelFile installs d as the manifest's global tombstone descriptor,
// replacing whatever was there before (spec.md §4.G).
func UpsertDelFile(m *Manifest, d *descriptor.FileDescriptor) {
	m.Del = d.Clone()
}

// insertFileSet splits the backing array at i and inserts fs, keeping the
// strictly-ascending invariant m.find relies on.
func (m *Manifest) insertFileSet(i int, fs *FileSet) {
	m.FileSets = append(m.FileSets, nil)
	copy(m.FileSets[i+1:], m.FileSets[i:])
	m.FileSets[i] = fs
}

// validateSttTransition enforces spec.md §4.G's three legal stt count
// transitions: unchanged, append-one, or collapse-to-one. Anything else
// (including shrinking to zero, or jumping by more than one level) is a
// broken caller contract, not a runtime condition that can be repaired.
//
// oldN == 0 is the fresh-insert case (no existing file set to transition
// from): spec.md §3 requires every file set to carry n_stt ∈ [1, MAX_STT]
// from the moment it exists, so a brand new file set is checked against that
// range directly rather than against the merge-transition rules below, which
// assume a prior, already-valid NStt to compare against.
func validateSttTransition(oldN, newN int) error {
	if oldN == 0 {
		if newN < 1 || newN > config.MaxStt {
			return errInvariantf("upsert: file set must have between 1 and %d stt levels, got %d",
				config.MaxStt, newN)
		}
		return nil
	}

	if newN == oldN || newN == oldN+1 || (newN == 1 && oldN >= 1) {
		return nil
	}
	return errInvariantf("upsert: illegal stt transition from %d to %d levels", oldN, newN)
}
