package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var pathProperty = map[string]interface{}{
	"type":        "string",
	"description": "Absolute path to the image file",
}

var regionProperties = map[string]interface{}{
	"x1": map[string]interface{}{
		"type":        "integer",
		"description": "Optional crop: left edge X coordinate (0-based)",
	},
	"y1": map[string]interface{}{
		"type":        "integer",
		"description": "Optional crop: top edge Y coordinate (0-based)",
	},
	"x2": map[string]interface{}{
		"type":        "integer",
		"description": "Optional crop: right edge X coordinate (exclusive)",
	},
	"y2": map[string]interface{}{
		"type":        "integer",
		"description": "Optional crop: bottom edge Y coordinate (exclusive)",
	},
}

func withRegion(props map[string]interface{}) map[string]interface{} {
	for k, v := range regionProperties {
		props[k] = v
	}
	return props
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "shape_classify",
			Description: "Classify the shape in an image file (Circle, Square, Rectangle, Kite, Parallelogram, Rhombus, Trapezoid, Triangle). Returns the best label, its score and the top_n ranking. An optional x1,y1,x2,y2 region classifies only that crop.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withRegion(map[string]interface{}{
					"path": pathProperty,
					"top_n": map[string]interface{}{
						"type":        "integer",
						"description": "Number of ranked scores to include. Default 3",
						"default":     3,
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "shape_rank",
			Description: "Return every label of the classifier with its score, best first. With softmax the raw scores are converted to probabilities.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withRegion(map[string]interface{}{
					"path": pathProperty,
					"top_n": map[string]interface{}{
						"type":        "integer",
						"description": "Limit the ranking to the n best labels. 0 returns all",
						"default":     0,
					},
					"softmax": map[string]interface{}{
						"type":        "boolean",
						"description": "Convert scores to probabilities. Default false",
						"default":     false,
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "shape_classify_frame",
			Description: "Classify a raw camera frame file (gray, i420, nv21 or nv12 bytes) exactly as the camera pipeline would.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the raw frame file",
					},
					"format": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"gray", "i420", "nv21", "nv12"},
						"description": "Byte layout of the frame. Default nv21",
						"default":     "nv21",
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Frame width in pixels",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Frame height in pixels",
					},
				},
				"required": []string{"path", "width", "height"},
			},
		},
		{
			Name:        "pipeline_info",
			Description: "Describe the loaded pipeline: colour mode, tensor shape, normalization, interpolation, label table and tool call counts.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
