package mcp

// SendInput defines the input for cogloop_send tool.
type SendInput struct {
	Evidence   map[string]float64 `json:"evidence" jsonschema:"Evidence weights keyed by dimension.value, e.g. color.red"`
	Steps      int                `json:"steps,omitempty" jsonschema:"Number of times to send the evidence (default 1)"`
	IntervalMs int                `json:"interval_ms,omitempty" jsonschema:"Simulated milliseconds between sends (default 1)"`
}

// SendOutput defines the output for cogloop_send tool.
type SendOutput struct {
	Scheduled int    `json:"scheduled" jsonschema:"Number of sends scheduled"`
	Pending   int    `json:"pending" jsonschema:"Events waiting in the queue"`
	Message   string `json:"message" jsonschema:"Human-readable result message"`
}

// RunInput defines the input for cogloop_run tool.
type RunInput struct {
	MaxEvents int `json:"max_events,omitempty" jsonschema:"Stop after this many events (default: until a decision or the queue drains)"`
}

// RunOutput defines the output for cogloop_run tool.
type RunOutput struct {
	Decided  bool    `json:"decided" jsonschema:"Whether a choice was selected during the run"`
	Choice   string  `json:"choice,omitempty" jsonschema:"Selected response value"`
	Key      string  `json:"key,omitempty" jsonschema:"Full key of the selected response"`
	Events   int     `json:"events" jsonschema:"Events processed"`
	SimTime  string  `json:"sim_time" jsonschema:"Simulated time after the run"`
	Pending  int     `json:"pending" jsonschema:"Events left in the queue"`
	Evidence float64 `json:"evidence" jsonschema:"Largest accumulated evidence when the run stopped"`
}

// PollInput defines the input for cogloop_poll tool.
type PollInput struct{}

// PollOutput defines the output for cogloop_poll tool.
type PollOutput struct {
	Choice    string            `json:"choice,omitempty" jsonschema:"Current selected response value, empty before the first decision"`
	Selection map[string]string `json:"selection" jsonschema:"Chosen key per choice group"`
	Decisions int               `json:"decisions" jsonschema:"Selections made so far"`
}

// ClearInput defines the input for cogloop_clear tool.
type ClearInput struct{}

// ClearOutput defines the output for cogloop_clear tool.
type ClearOutput struct {
	Discarded int    `json:"discarded" jsonschema:"Queued events dropped"`
	Message   string `json:"message" jsonschema:"Human-readable result message"`
}

// StatusInput defines the input for cogloop_status tool.
type StatusInput struct{}

// StatusOutput defines the output for cogloop_status tool.
type StatusOutput struct {
	Scenario    string             `json:"scenario" jsonschema:"Scenario name"`
	SimTime     string             `json:"sim_time" jsonschema:"Current simulated time"`
	Pending     int                `json:"pending" jsonschema:"Events waiting in the queue"`
	State       string             `json:"state" jsonschema:"Accumulator state: idle, accumulating or crossed"`
	Threshold   float64            `json:"threshold" jsonschema:"Decision threshold"`
	Accumulated map[string]float64 `json:"accumulated" jsonschema:"Accumulated evidence per response value"`
	Decisions   int                `json:"decisions" jsonschema:"Selections made so far"`
	Processes   []string           `json:"processes" jsonschema:"Registered processes in resolution order"`
	RunID       string             `json:"run_id,omitempty" jsonschema:"Trace run id when tracing is enabled"`
}
