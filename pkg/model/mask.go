package model

// UsageMask tags a PSO with contextual applicability bits (quality level,
// platform features). Records whose mask does not match the current game mask
// are filtered out of the backlog.
type UsageMask uint64

// MaskAll matches every record.
const MaskAll UsageMask = ^UsageMask(0)

// MaskComparer reports whether a record tagged with fileMask is relevant
// under gameMask.
type MaskComparer func(fileMask, gameMask UsageMask) bool

// MaskAnyMatch is the default comparer: a record is relevant when it shares
// any bit with the game mask.
func MaskAnyMatch(fileMask, gameMask UsageMask) bool {
	return fileMask&gameMask != 0
}

// MaskExactMatch requires all game mask bits to be present on the record.
func MaskExactMatch(fileMask, gameMask UsageMask) bool {
	return fileMask&gameMask == gameMask
}
