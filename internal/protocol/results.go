package protocol

// LoadResult is the success data of a loadModel command.
type LoadResult struct {
	ModelType string `json:"modelType"`
	Layers    int    `json:"layers"`
	Heads     int    `json:"heads"`
	// Path is where the model graph was read from.
	Path               string   `json:"path"`
	ExecutionProviders []string `json:"onnxExecutionProviders"`
	Outputs            int      `json:"outputs"`
}
