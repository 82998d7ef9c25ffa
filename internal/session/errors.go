package session

import "errors"

// ErrRekeyFailed signals a local tree inconsistency that cannot be
// recovered from within the session; per §7 it is fatal and tears the
// session down.
var ErrRekeyFailed = errors.New("session: rekey failed, tearing down session")

// ErrUnexpectedWelcome names a tree_welcome frame that targets a peer other
// than this session. Machine.Handle does not return it: such frames are
// ignored and Handle returns nil.
var ErrUnexpectedWelcome = errors.New("session: tree_welcome not targeted at this session")
