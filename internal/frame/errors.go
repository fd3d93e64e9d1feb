package frame

import "errors"

// ErrChannelCount marks a frame whose channel count does not match the
// session's fixed sensor count. Such frames are dropped, not processed.
var ErrChannelCount = errors.New("channel count mismatch")
