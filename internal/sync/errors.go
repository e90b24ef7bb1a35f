package sync

import "errors"

// ErrDecode indicates malformed base64 content in a payload.
var ErrDecode = errors.New("decode content")
