package mcp

// StepInput defines the input for the tendril_step tool.
type StepInput struct {
	N int `json:"n,omitempty" jsonschema:"Number of ticks to run (default 1, capped at 10000)"`
}

// StepOutput defines the output for the tendril_step tool.
type StepOutput struct {
	Ticks      int       `json:"ticks" jsonschema:"Number of ticks completed"`
	Tick       int       `json:"tick" jsonschema:"World tick after stepping"`
	Phase      string    `json:"phase,omitempty" jsonschema:"Phase of the last completed tick"`
	Error      float64   `json:"error" jsonschema:"Mean squared output error of the last corrected tick"`
	MeanError  float64   `json:"mean_error" jsonschema:"Mean output error over the corrected ticks of this call"`
	Outputs    []float64 `json:"outputs,omitempty" jsonschema:"Output values of the last corrected tick"`
	Targets    []float64 `json:"targets,omitempty" jsonschema:"Targets of the last corrected tick"`
	Flipped    int       `json:"flipped" jsonschema:"Flows reversed during this call"`
	MeanWeight float64   `json:"mean_weight" jsonschema:"Mean flow weight after the last tick"`
}

// SnapshotInput defines the input for the tendril_snapshot tool.
type SnapshotInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format: text, json or dot (default json)"`
	Record bool   `json:"record,omitempty" jsonschema:"Also store the flow states in the trace database"`
}

// SnapshotOutput defines the output for the tendril_snapshot tool.
type SnapshotOutput struct {
	Format    string `json:"format" jsonschema:"Format of the rendered graph"`
	Tick      int    `json:"tick" jsonschema:"Tick the snapshot was taken at"`
	Graph     string `json:"graph" jsonschema:"Rendered graph"`
	NodeCount int    `json:"node_count" jsonschema:"Number of nodes"`
	FlowCount int    `json:"flow_count" jsonschema:"Number of flows"`
}

// StatusInput defines the input for the tendril_status tool.
type StatusInput struct{}

// StatusOutput defines the output for the tendril_status tool.
type StatusOutput struct {
	Program    string  `json:"program" jsonschema:"Name of the loaded program"`
	Seed       int64   `json:"seed" jsonschema:"Seed the world was built with"`
	Mode       string  `json:"mode" jsonschema:"Loop mode: phased or weight"`
	Tick       int     `json:"tick" jsonschema:"Number of completed ticks"`
	NextPhase  string  `json:"next_phase,omitempty" jsonschema:"Phase the next tick will run (phased mode)"`
	Paused     bool    `json:"paused" jsonschema:"Whether scheduled ticks are paused"`
	Nodes      int     `json:"nodes" jsonschema:"Number of nodes"`
	Flows      int     `json:"flows" jsonschema:"Number of flows"`
	Boundaries int     `json:"boundaries" jsonschema:"Number of boundaries"`
	RunID      string  `json:"run_id,omitempty" jsonschema:"Trace run id when tracing is enabled"`
	LastError  float64 `json:"last_error" jsonschema:"Output error of the last tick"`
	MeanWeight float64 `json:"mean_weight" jsonschema:"Mean flow weight after the last tick"`
}

// LoadInput defines the input for the tendril_load tool.
type LoadInput struct {
	Program string `json:"program" jsonschema:"Built-in program name or path to a .yaml program file"`
	Seed    int64  `json:"seed,omitempty" jsonschema:"Random seed (0 uses the program's seed)"`
}

// LoadOutput defines the output for the tendril_load tool.
type LoadOutput struct {
	Status  StatusOutput `json:"status" jsonschema:"Driver status after loading"`
	Message string       `json:"message" jsonschema:"Human-readable result message"`
}
