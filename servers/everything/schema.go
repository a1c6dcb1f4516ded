package everything

// EchoArgs is the arguments for the echo tool.
type EchoArgs struct {
	Text string `json:"text" jsonschema:"description=Text to echo back"`
}

// AddArgs is the arguments for the add tool.
type AddArgs struct {
	A float64 `json:"a" jsonschema:"description=First number"`
	B float64 `json:"b" jsonschema:"description=Second number"`
}

// LongRunningOperationArgs is the arguments for the longRunningOperation tool.
type LongRunningOperationArgs struct {
	Duration float64 `json:"duration,omitempty" jsonschema:"description=Duration of the operation in seconds,default=10"`
	Steps    int     `json:"steps,omitempty" jsonschema:"description=Number of steps in the operation,default=5"`
}

// SampleLLMArgs is the arguments for the sampleLLM tool.
type SampleLLMArgs struct {
	Prompt    string `json:"prompt" jsonschema:"description=The prompt to send to the LLM"`
	MaxTokens int    `json:"maxTokens,omitempty" jsonschema:"description=Maximum number of tokens to generate,default=100"`
}

// ComplexPromptArgs is the arguments for the complex_prompt prompt.
type ComplexPromptArgs struct {
	Temperature float64 `json:"temperature" jsonschema:"description=Temperature setting"`
	Style       string  `json:"style,omitempty" jsonschema:"description=Output style"`
}

// tinyImage is a 1x1 PNG.
const tinyImage = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="
