package vnodefs

import (
	"github.com/elliotcourant/timber"

	"github.com/elliotcourant/vnodefs/descriptor"
)

// Commit1 is the commit engine's phase 1 (spec.md §4.H): durably publish
// proposed as the new CURRENT. After Commit1 returns success, a fresh open
// of dir must derive proposed regardless of whether phase 2 ever runs — the
// on-disk state is definitionally committed at that point.
func Commit1(dir string, proposed *Manifest) error {
	return StoreManifest(dir, proposed)
}

// Commit2 is the commit engine's phase 2: apply the diff between live and
// proposed in memory, decrementing refs on every descriptor proposed no
// longer reaches and unlinking the ones that drop to zero. It must be
// called only after a successful Commit1 for the same proposed value.
//
// Phase 2 completes its in-memory transform unconditionally (spec.md §7):
// an unlink failure is recorded and returned, but every remaining op in the
// diff still runs, and live ends up fully updated either way.
func Commit2(dir string, live, proposed *Manifest) error {
	var firstErr error
	note := func(err error) {
		if err == nil {
			return
		}
		timber.Warningf("vnodefs: phase 2 unlink failed: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := applyDelTransition(dir, live, proposed); err != nil {
		// Del monotonicity is a caller contract, not a runtime condition;
		// unlike unlink failures this aborts immediately rather than being
		// merely noted, since it means proposed itself is invalid.
		if KindOf(err) == KindInvariantViolation {
			return err
		}
		note(err)
	}

	ops := planCommit(live, proposed)

	newSets := make([]*FileSet, 0, len(proposed.FileSets))
	for _, op := range ops {
		switch op.Kind {
		case editAdd:
			newSets = append(newSets, op.New.clone())

		case editRemove:
			removeFileSet(dir, op.Old, note)

		case editMergeSameDisk:
			if err := mergeSameDisk(dir, op.Old, op.New, note); err != nil {
				return err
			}
			newSets = append(newSets, op.Old)

		case editMergeCrossDisk:
			if err := mergeCrossDisk(dir, op.Old, op.New, note); err != nil {
				return err
			}
			newSets = append(newSets, op.Old)
		}
	}

	live.FileSets = newSets
	return firstErr
}

// editOpKind names one step of the three-way diff walk, per spec.md §9's
// recommendation to produce an explicit edit script rather than applying
// the walk's decisions inline — the script is planned by planCommit
// independently of Commit2 executing it.
type editOpKind int

const (
	editAdd editOpKind = iota
	editRemove
	editMergeSameDisk
	editMergeCrossDisk
)

// editOp is one entry of the plan planCommit produces. Old and New point
// directly at the live and proposed FileSet values the op was derived from;
// Old is live's actual object (mutated in place by a MERGE), never a copy.
type editOp struct {
	Kind editOpKind
	Old  *FileSet
	New  *FileSet
}

// planCommit walks live.FileSets and proposed.FileSets by ascending Fid,
// producing the edit script spec.md §4.H describes as a cursor loop. Both
// inputs are already known to be strictly ascending (checkOrdering), so a
// single linear pass suffices.
func planCommit(live, proposed *Manifest) []editOp {
	var ops []editOp
	iOld, iNew := 0, 0

	for iOld < len(live.FileSets) || iNew < len(proposed.FileSets) {
		switch {
		case iOld < len(live.FileSets) && iNew < len(proposed.FileSets) &&
			live.FileSets[iOld].Fid == proposed.FileSets[iNew].Fid:
			oldFS, newFS := live.FileSets[iOld], proposed.FileSets[iNew]
			kind := editMergeSameDisk
			if !oldFS.Disk.SameDisk(newFS.Disk) {
				kind = editMergeCrossDisk
			}
			ops = append(ops, editOp{Kind: kind, Old: oldFS, New: newFS})
			iOld++
			iNew++

		case iNew >= len(proposed.FileSets) ||
			(iOld < len(live.FileSets) && live.FileSets[iOld].Fid < proposed.FileSets[iNew].Fid):
			ops = append(ops, editOp{Kind: editRemove, Old: live.FileSets[iOld]})
			iOld++

		default:
			ops = append(ops, editOp{Kind: editAdd, New: proposed.FileSets[iNew]})
			iNew++
		}
	}

	return ops
}

// applyDelTransition implements spec.md §4.H's Del rule: del is monotonic
// per run, so proposed dropping a del live already has is a broken caller
// contract. A genuinely new del (absent, or a different commit id) replaces
// live's by value and drops the old one's ref.
func applyDelTransition(dir string, live, proposed *Manifest) error {
	if proposed.Del == nil {
		if live.Del != nil {
			return errInvariantf("commit: proposed dropped the del file live already has (commit %d)",
				live.Del.CommitId)
		}
		return nil
	}

	if live.Del != nil && live.Del.CommitId == proposed.Del.CommitId {
		return nil
	}

	old := live.Del
	live.Del = proposed.Del.Clone()

	if old != nil && old.Decr() == 0 {
		return unlinkDel(dir, old)
	}
	return nil
}

// removeFileSet drops every descriptor old owns, unlinking any that reach
// zero, then lets the caller omit old from the rebuilt FileSets slice —
// REMOVE_OLD in spec.md §4.H. Every unlink failure is routed through note
// individually rather than collapsed to a single return value, so a file set
// with several stt levels failing to unlink doesn't hide all but the first.
func removeFileSet(dir string, old *FileSet, note func(error)) {
	for _, d := range old.descriptors() {
		if d.Decr() == 0 {
			note(unlinkDescriptor(dir, old, d))
		}
	}
}

// mergeSameDisk applies MERGE for a file set whose disk did not change,
// mutating old in place. Each singleton descriptor is replaced only if its
// commit id changed; otherwise the merge enforces the kind-specific
// growth/equality rule from spec.md §4.H. Unlink failures are reported
// through note rather than aborting, matching phase 2's unconditional
// in-memory completion; a broken growth/equality contract is returned
// directly since it means the proposed descriptor itself is invalid.
func mergeSameDisk(dir string, old, new *FileSet, note func(error)) error {
	if err := mergeSingleton(dir, old, old.Head, new.Head, func(d *descriptor.FileDescriptor) { old.Head = d }, note); err != nil {
		return err
	}
	if err := mergeSingleton(dir, old, old.Data, new.Data, func(d *descriptor.FileDescriptor) { old.Data = d }, note); err != nil {
		return err
	}
	if err := mergeSingleton(dir, old, old.Sma, new.Sma, func(d *descriptor.FileDescriptor) { old.Sma = d }, note); err != nil {
		return err
	}
	return mergeSttSameDisk(dir, old, new, note)
}

// mergeSingleton merges one of head/data/sma. set installs the resulting
// descriptor back into the owning slot on old.
func mergeSingleton(
	dir string,
	old *FileSet,
	oldDesc, newDesc *descriptor.FileDescriptor,
	set func(*descriptor.FileDescriptor),
	note func(error),
) error {
	if oldDesc.CommitId != newDesc.CommitId {
		cloned := newDesc.Clone()
		if oldDesc.Decr() == 0 {
			note(unlinkDescriptor(dir, old, oldDesc))
		}
		set(cloned)
		return nil
	}

	switch oldDesc.Kind {
	case descriptor.Head:
		if oldDesc.Size != newDesc.Size || oldDesc.Offset != newDesc.Offset {
			return errInvariantf("commit: head file for fid %d changed size/offset under the same commit id %d",
				old.Fid, oldDesc.CommitId)
		}
	case descriptor.Data, descriptor.Sma:
		if newDesc.Size < oldDesc.Size {
			return errInvariantf("commit: %s file for fid %d shrank from %d to %d under the same commit id %d",
				oldDesc.Kind, old.Fid, oldDesc.Size, newDesc.Size, oldDesc.CommitId)
		}
		oldDesc.Size = newDesc.Size
	}
	return nil
}

// mergeSttSameDisk implements the stt half of MERGE on an unchanged disk:
// unchanged count replaces level-by-level on commit id mismatch, append
// adds one fresh level leaving the rest alone, and collapse drops every old
// level for a single fresh one.
func mergeSttSameDisk(dir string, old, new *FileSet, note func(error)) error {
	switch {
	case new.NStt == old.NStt:
		for i := 0; i < new.NStt; i++ {
			replaceSttLevel(dir, old, i, new.Stt[i], note)
		}

	case new.NStt == old.NStt+1:
		for i := 0; i < old.NStt; i++ {
			replaceSttLevel(dir, old, i, new.Stt[i], note)
		}
		old.Stt[old.NStt] = new.Stt[old.NStt].Clone()
		old.NStt = new.NStt

	case new.NStt == 1 && old.NStt >= 1:
		collapseStt(dir, old, new, note)

	default:
		return errInvariantf("commit: illegal stt transition for fid %d from %d to %d levels",
			old.Fid, old.NStt, new.NStt)
	}

	return nil
}

func replaceSttLevel(dir string, old *FileSet, i int, newDesc *descriptor.FileDescriptor, note func(error)) {
	oldDesc := old.Stt[i]
	if oldDesc.CommitId == newDesc.CommitId {
		return
	}
	cloned := newDesc.Clone()
	if oldDesc.Decr() == 0 {
		note(unlinkDescriptor(dir, old, oldDesc))
	}
	old.Stt[i] = cloned
}

func collapseStt(dir string, old, new *FileSet, note func(error)) {
	for i := 0; i < old.NStt; i++ {
		d := old.Stt[i]
		if d.Decr() == 0 {
			note(unlinkDescriptor(dir, old, d))
		}
		old.Stt[i] = nil
	}
	old.Stt[0] = new.Stt[0].Clone()
	old.NStt = 1
}

// mergeCrossDisk applies MERGE for a file set whose disk changed. Every
// descriptor is unconditionally replaced (spec.md §4.H): there is no
// same-commit growth-in-place case when the backing disk itself moved.
func mergeCrossDisk(dir string, old, new *FileSet, note func(error)) error {
	replaceUnconditional(dir, old, old.Head, new.Head, func(d *descriptor.FileDescriptor) { old.Head = d }, note)
	replaceUnconditional(dir, old, old.Data, new.Data, func(d *descriptor.FileDescriptor) { old.Data = d }, note)
	replaceUnconditional(dir, old, old.Sma, new.Sma, func(d *descriptor.FileDescriptor) { old.Sma = d }, note)

	if new.NStt != old.NStt {
		return errInvariantf("commit: disk migration for fid %d requires matching stt counts, got %d and %d",
			old.Fid, old.NStt, new.NStt)
	}
	for i := 0; i < old.NStt; i++ {
		oldDesc := old.Stt[i]
		cloned := new.Stt[i].Clone()
		if oldDesc.Decr() == 0 {
			note(unlinkDescriptor(dir, old, oldDesc))
		}
		old.Stt[i] = cloned
	}

	old.Disk = new.Disk
	return nil
}

func replaceUnconditional(
	dir string,
	old *FileSet,
	oldDesc, newDesc *descriptor.FileDescriptor,
	set func(*descriptor.FileDescriptor),
	note func(error),
) {
	cloned := newDesc.Clone()
	if oldDesc.Decr() == 0 {
		note(unlinkDescriptor(dir, old, oldDesc))
	}
	set(cloned)
}
