package dispatch

import "errors"

// ErrNoHandler and ErrHandlerRejected never escape the Engine's own
// dispatch path — both manifest only as an outbound NACK, per spec.md §7.
// They are exported because dispatchOne passes them to Observer.OnReject,
// letting observers (see pkg/telemetry) distinguish the failure reason.
var (
	ErrNoHandler       = errors.New("dispatch: no handler registered")
	ErrHandlerRejected = errors.New("dispatch: handler rejected record")
)
