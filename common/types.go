package common

// Parameters is a serialized model.
type Parameters struct {
	// Tensors holds one serialized tensor per model layer.
	Tensors [][]byte `json:"tensors"`

	// TensorType names the encoding of each tensor (e.g. "float64le").
	TensorType string `json:"tensor_type"`
}

// ParametersRes is returned by a client asked for its current parameters.
type ParametersRes struct {
	Parameters Parameters `json:"parameters"`
}

// FitIns instructs a client to train on its local data.
type FitIns struct {
	Parameters Parameters `json:"parameters"`
	Config     Config     `json:"config,omitempty"`
}

// FitRes is the outcome of local training.
type FitRes struct {
	Parameters Parameters `json:"parameters"`

	// NumExamples is the number of local examples used for training.
	// Strategies use it to weight the update.
	NumExamples int64 `json:"num_examples"`

	Metrics Metrics `json:"metrics,omitempty"`
}

// EvaluateIns instructs a client to score parameters on its local data.
type EvaluateIns struct {
	Parameters Parameters `json:"parameters"`
	Config     Config     `json:"config,omitempty"`
}

// EvaluateRes is the outcome of local evaluation.
type EvaluateRes struct {
	Loss        float64 `json:"loss"`
	NumExamples int64   `json:"num_examples"`
	Metrics     Metrics `json:"metrics,omitempty"`
}

// Reconnect asks a client to disconnect and optionally come back later.
type Reconnect struct {
	// Seconds is the suggested delay before reconnecting.
	// Zero means the client should not reconnect.
	Seconds int64 `json:"seconds,omitempty"`
}

// Disconnect is a client's answer to Reconnect.
type Disconnect struct {
	Reason string `json:"reason"`
}

// Disconnect reasons.
const (
	DisconnectUnknown           = "unknown"
	DisconnectReconnect         = "RECONNECT"
	DisconnectPowerDisconnected = "POWER_DISCONNECTED"
)
