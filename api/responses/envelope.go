package responses

// Every handler reply uses one of two envelopes: successes wrap the payload
// under "data", failures wrap a stable machine code plus a public message
// under "error".

type successEnvelope struct {
	Data any `json:"data"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}
