package vfs

import (
	"errors"

	"github.com/nicolagi/dedupvfs/internal/dirtree"
	"github.com/nicolagi/dedupvfs/internal/hash"
	"github.com/nicolagi/dedupvfs/internal/ledger"
	log "github.com/sirupsen/logrus"
)

// AuditReport is the outcome of a consistency scan over this user's tree,
// the shared ledger and the shared object store. The scan diagnoses, it
// never repairs.
//
// Cross-user reference totals cannot be verified from a single user's
// session (other users' trees are not readable here), so the scan covers
// what one instance can see: every digest referenced by this user's tree
// must have a ledger row and a blob, and every blob in the store must have
// a ledger row.
type AuditReport struct {
	// MissingLedgerRows lists inner paths of file nodes whose digest has
	// no ledger row.
	MissingLedgerRows []string

	// MissingBlobs lists inner paths of file nodes whose digest has no
	// blob in the object store.
	MissingBlobs []string

	// Unbound lists inner paths of file nodes with no digest bound at
	// all. Legal transiently, but at quiescence it means an import died
	// between node creation and binding.
	Unbound []string

	// Orphans lists digests of blobs present in the object store with no
	// ledger row. Awaiting cleanup; non-fatal.
	Orphans []hash.Digest
}

// Clean reports whether the scan found nothing to complain about.
func (r *AuditReport) Clean() bool {
	return len(r.MissingLedgerRows) == 0 &&
		len(r.MissingBlobs) == 0 &&
		len(r.Unbound) == 0 &&
		len(r.Orphans) == 0
}

// Audit scans for disagreements between this user's tree, the ledger and
// the object store, the degraded states a failed compensation can leave
// behind. Each finding is also logged at Warning as it is found.
func (vfs *VirtualFileSystem) Audit() (*AuditReport, error) {
	const method = "Audit"
	report := &AuditReport{}

	var walkErr error
	err := vfs.tree.WalkFiles(dirtree.Path{}, func(rel dirtree.Path, n *dirtree.Node) {
		if walkErr != nil {
			return
		}
		p := rel.String()
		d := n.Digest()
		if d == "" {
			report.Unbound = append(report.Unbound, p)
			log.WithFields(log.Fields{"op": method, "path": p}).Warning("vfs: file node has no digest bound")
			return
		}
		if _, err := vfs.ledger.Get(d); err != nil {
			if !errors.Is(err, ledger.ErrNotExists) {
				walkErr = err
				return
			}
			report.MissingLedgerRows = append(report.MissingLedgerRows, p)
			log.WithFields(log.Fields{"op": method, "path": p, "digest": d}).Warning("vfs: referenced digest has no ledger row")
		}
		exists, err := vfs.store.Exists(d)
		if err != nil {
			walkErr = err
			return
		}
		if !exists {
			report.MissingBlobs = append(report.MissingBlobs, p)
			log.WithFields(log.Fields{"op": method, "path": p, "digest": d}).Warning("vfs: referenced digest has no blob")
		}
	})
	if err != nil {
		return nil, errorf(method, "walking tree: %v", err)
	}
	if walkErr != nil {
		return nil, errorf(method, "checking object store: %v", walkErr)
	}

	err = vfs.store.ForEach(func(d hash.Digest) error {
		if _, err := vfs.ledger.Get(d); err != nil {
			if !errors.Is(err, ledger.ErrNotExists) {
				return err
			}
			report.Orphans = append(report.Orphans, d)
			log.WithFields(log.Fields{"op": method, "digest": d}).Warning("vfs: blob has no ledger row")
		}
		return nil
	})
	if err != nil {
		return nil, errorf(method, "enumerating object store: %v", err)
	}
	return report, nil
}
