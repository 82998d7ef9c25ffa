package treekem

import "errors"

// ErrStaleCommit is returned by ProcessCommit when the commit's epoch is not
// exactly current+1.
var ErrStaleCommit = errors.New("treekem: stale or out-of-order commit")

// ErrRekeyFailed signals an unrecoverable local tree inconsistency: the
// receiver could not find any decryptable path entry in a commit it should
// have been able to process.
var ErrRekeyFailed = errors.New("treekem: unable to derive root secret from commit")

// ErrRoomFull is returned by AddLeaf when the tree already holds the
// maximum of 16 leaves (B1).
var ErrRoomFull = errors.New("treekem: room is full")

// MaxLeaves is the largest group size this tree implementation supports (§3).
const MaxLeaves = 16
