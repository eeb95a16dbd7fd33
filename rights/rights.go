// Package rights defines the fixed 64-bit capability bitset that every
// descriptor table entry carries, and the helpers used to check and
// narrow it.
package rights

// Rights is a bitset of operations permitted on a descriptor. The bit
// positions match the ABI's fixed assignment; values
// are kept stable because they cross the guest boundary indirectly
// through fdstat records.
type Rights uint64

const (
	FDDatasync Rights = 1 << iota
	FDRead
	FDSeek
	FDFdstatSetFlags
	FDSync
	FDTell
	FDWrite
	FDAdvise
	FDAllocate
	PathCreateDirectory
	PathCreateFile
	PathLinkSource
	PathLinkTarget
	PathOpen
	FDReaddir
	PathReadlink
	PathRenameSource
	PathRenameTarget
	PathFilestatGet
	PathFilestatSetSize
	PathFilestatSetTimes
	FDFilestatGet
	FDFilestatSetSize
	FDFilestatSetTimes
	PathSymlink
	PathRemoveDirectory
	PathUnlinkFile
	PollFDReadwrite
	SockShutdown
	PollFDSync
)

// All is the union of every defined right; useful as the default base
// mask for a freshly preopened directory root.
const All = FDDatasync | FDRead | FDSeek | FDFdstatSetFlags | FDSync |
	FDTell | FDWrite | FDAdvise | FDAllocate | PathCreateDirectory |
	PathCreateFile | PathLinkSource | PathLinkTarget | PathOpen |
	FDReaddir | PathReadlink | PathRenameSource | PathRenameTarget |
	PathFilestatGet | PathFilestatSetSize | PathFilestatSetTimes |
	FDFilestatGet | FDFilestatSetSize | FDFilestatSetTimes | PathSymlink |
	PathRemoveDirectory | PathUnlinkFile | PollFDReadwrite | SockShutdown |
	PollFDSync

// DirectoryBase is the base right set a preopened directory entry
// itself needs in order to be traversed and enumerated.
const DirectoryBase = PathOpen | FDReaddir | PathFilestatGet | FDFilestatGet

// Has reports whether r contains every bit set in want.
func (r Rights) Has(want Rights) bool {
	return r&want == want
}

// Subset reports whether r is a subset of other, i.e. every bit set in
// r is also set in other: "rights needed is a subset of rights held".
func (r Rights) Subset(other Rights) bool {
	return r&^other == 0
}

// Intersect returns the bits present in both r and other. path_open
// computes a new descriptor's base rights as the intersection of the
// requested rights and the parent's inheriting rights.
func (r Rights) Intersect(other Rights) Rights {
	return r & other
}

// Narrow reports whether candidate is a valid narrowing of r: every bit
// in candidate must already be set in r. Used by fd_fdstat_set_rights,
// which may only shrink a descriptor's rights, never grow them.
func (r Rights) Narrow(candidate Rights) bool {
	return candidate.Subset(r)
}

// FromOpenFlags derives the rights a path_open call additionally
// requires given its requested O_* open flags: O_CREAT implies
// PathCreateFile, O_TRUNC implies PathFilestatSetSize.
func FromOpenFlags(creat, trunc bool) (needed Rights) {
	if creat {
		needed |= PathCreateFile
	}
	if trunc {
		needed |= PathFilestatSetSize
	}
	return needed
}

// FromFdFlags derives the inheriting rights a descriptor opened with
// O_DSYNC/O_SYNC must additionally carry.
func FromFdFlags(dsync, sync bool) (inheriting Rights) {
	if dsync {
		inheriting |= FDDatasync
	}
	if sync {
		inheriting |= FDSync
	}
	return inheriting
}
