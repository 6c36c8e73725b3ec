package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick    Event = "tick"
	EventExpired Event = "expired"
	EventPong    Event = "pong"
	EventError   Event = "error"
)

// TickResponse is the periodic timer push for the current section.
type TickResponse struct {
	Event         Event  `json:"event"`
	SectionName   string `json:"section_name"`
	TimeRemaining int    `json:"time_remaining"`
	AutoSubmit    bool   `json:"auto_submit"`
}

// ExpiredResponse tells the client the section clock hit zero.
type ExpiredResponse struct {
	Event       Event  `json:"event"`
	SectionName string `json:"section_name"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
