/*
reconcile.go - Staging vs production reconciliation

PURPOSE:
  Each time a collection is loaded, decide whether to present the staging
  snapshot (real pending work) or production (staging absent or stale).

ALGORITHM:
  1. Staging empty → present production, HasStaging=false, IsDirty=false.
  2. Otherwise diff:
     a. id sets for both snapshots
     b. for every staging id also in production, compare content
     c. a staging id missing from production is a content difference
     d. HasDifferentContent = any (b) mismatch or (c)
     e. HasDifferentIDs = id sets not equal
  3. Any difference → present staging, HasStaging=true, IsDirty=true.
  4. No difference → staging is a stale copy; present production,
     HasStaging=false, IsDirty=false. Nothing is purged here.

  Step 4 prevents a leftover staging copy from claiming "unsaved work";
  step 3 prevents real edits from being hidden behind production.
*/
package workflow

// ComputeDiff compares a staging snapshot against production.
func ComputeDiff[T Record](staging, production []T, equal EqualFunc[T]) Diff {
	if equal == nil {
		equal = CanonicalEqual[T]
	}

	prodByID := make(map[string]T, len(production))
	for _, p := range production {
		prodByID[p.RecordID()] = p
	}
	stagingIDs := make(map[string]struct{}, len(staging))

	var d Diff
	for _, s := range staging {
		id := s.RecordID()
		stagingIDs[id] = struct{}{}

		p, ok := prodByID[id]
		if !ok {
			d.Added = append(d.Added, id)
			d.HasDifferentContent = true
			continue
		}
		if !equal(s, p) {
			d.Changed = append(d.Changed, id)
			d.HasDifferentContent = true
		}
	}

	for _, p := range production {
		if _, ok := stagingIDs[p.RecordID()]; !ok {
			d.Removed = append(d.Removed, p.RecordID())
		}
	}

	d.HasDifferentIDs = len(d.Added) > 0 || len(d.Removed) > 0 ||
		len(stagingIDs) != len(prodByID)

	return d
}

// Reconcile decides which snapshot to present.
func Reconcile[T Record](staging, production []T, equal EqualFunc[T]) (items []T, hasStaging, isDirty bool, d Diff) {
	if len(staging) == 0 {
		return cloneItems(production), false, false, Diff{}
	}

	d = ComputeDiff(staging, production, equal)
	if d.Pending() {
		return cloneItems(staging), true, true, d
	}
	return cloneItems(production), false, false, d
}
