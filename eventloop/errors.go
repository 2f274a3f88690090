package eventloop

import "errors"

// Bridge errors. Both are fatal to the embedding.
var (
	ErrDisconnected = errors.New("event loop disconnected")
	ErrJoin         = errors.New("event loop worker did not stop")
)
