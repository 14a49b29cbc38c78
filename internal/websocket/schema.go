package websocket

// ─── Actions (UI → Agent) ───────────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Agent → UI) ────────────────────────────────────────────

type Event string

const (
	EventConnectivity Event = "connectivity"
	EventSyncResult   Event = "sync_result"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// ConnectivityEvent announces a reachability transition.
type ConnectivityEvent struct {
	Event  Event `json:"event"`
	Online bool  `json:"online"`
}

// SyncResultEvent carries the aggregate summary of a finished flush run.
type SyncResultEvent struct {
	Event   Event  `json:"event"`
	Synced  int    `json:"synced"`
	Failed  int    `json:"failed"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
