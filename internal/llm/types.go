package llm

import "encoding/json"

// Wire types for the generative language API.

type Part struct {
	Text         string        `json:"text,omitempty"`
	InlineData   *Blob         `json:"inlineData,omitempty"`
	FileData     *FileData     `json:"fileData,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type FileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type FunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"` // user, model
	Parts []Part `json:"parts"`
}

// Schema is the subset of JSON schema the tool builder emits.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type GenerateRequest struct {
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	Contents          []Content        `json:"contents"`
	Tools             []Tool           `json:"tools,omitempty"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      Content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ToolCall is a structured action request returned by the model.
type ToolCall struct {
	Name      string
	Arguments map[string]string
}

// Result is a parsed model turn: free text plus any structured tool calls.
type Result struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
}

// Empty reports whether the model produced neither text nor tool calls.
func (r Result) Empty() bool {
	return r.Text == "" && len(r.ToolCalls) == 0
}

// UploadedFile identifies an asset in the vendor file store.
type UploadedFile struct {
	Name string `json:"name"` // e.g. files/abc123
	URI  string `json:"uri"`
	Mime string `json:"mimeType"`
}
