package server

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/ironsheep/shape-classifier/internal/frame"
	"github.com/ironsheep/shape-classifier/internal/pipeline"
	"github.com/ironsheep/shape-classifier/internal/scores"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "shape_classify").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Debug("tool failed", zap.String("tool", params.Name), zap.Error(err))
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}
	s.calls[params.Name]++

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "shape_classify":
		return s.handleShapeClassify(args)
	case "shape_rank":
		return s.handleShapeRank(args)
	case "shape_classify_frame":
		return s.handleShapeClassifyFrame(args)
	case "pipeline_info":
		return s.handlePipelineInfo()
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// unmarshalArgs decodes tool arguments; absent arguments decode as zero.
func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

type regionArgs struct {
	X1 *int `json:"x1"`
	Y1 *int `json:"y1"`
	X2 *int `json:"x2"`
	Y2 *int `json:"y2"`
}

// crop returns the requested region of img, or img itself when no region
// was given.
func (r regionArgs) crop(img image.Image) (image.Image, error) {
	if r.X1 == nil && r.Y1 == nil && r.X2 == nil && r.Y2 == nil {
		return img, nil
	}
	if r.X1 == nil || r.Y1 == nil || r.X2 == nil || r.Y2 == nil {
		return nil, fmt.Errorf("region needs all of x1, y1, x2, y2")
	}

	bounds := img.Bounds()
	rect := image.Rect(*r.X1, *r.Y1, *r.X2, *r.Y2).Add(bounds.Min)
	if *r.X2 <= *r.X1 || *r.Y2 <= *r.Y1 {
		return nil, fmt.Errorf("invalid region (%d,%d)-(%d,%d): region is empty", *r.X1, *r.Y1, *r.X2, *r.Y2)
	}
	if !rect.In(bounds) {
		return nil, fmt.Errorf("region (%d,%d)-(%d,%d) exceeds image bounds %dx%d",
			*r.X1, *r.Y1, *r.X2, *r.Y2, bounds.Dx(), bounds.Dy())
	}
	return imaging.Crop(img, rect), nil
}

func (s *Server) loadRegion(path string, region regionArgs) (image.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	return region.crop(img)
}

type shapeClassifyArgs struct {
	Path string `json:"path"`
	TopN *int   `json:"top_n"`
	regionArgs
}

type classifyResult struct {
	Label     string         `json:"label"`
	Index     int            `json:"index"`
	Score     float32        `json:"score"`
	Ranking   []scores.Score `json:"ranking,omitempty"`
	LatencyMs float64        `json:"latency_ms"`
}

func (s *Server) handleShapeClassify(args json.RawMessage) (interface{}, error) {
	var a shapeClassifyArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	topN := 3
	if a.TopN != nil {
		topN = *a.TopN
	}

	img, err := s.loadRegion(a.Path, a.regionArgs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := s.classifier.Scores(img)
	if err != nil {
		return nil, err
	}
	top, err := scores.Top(out, s.classifier.Labels())
	if err != nil {
		return nil, err
	}

	res := classifyResult{
		Label:     top.Label,
		Index:     top.Index,
		Score:     top.Value,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
	}
	if topN > 0 {
		res.Ranking, _ = scores.Rank(out, s.classifier.Labels(), topN)
	}
	return res, nil
}

type shapeRankArgs struct {
	Path    string `json:"path"`
	TopN    int    `json:"top_n"`
	Softmax bool   `json:"softmax"`
	regionArgs
}

type rankResult struct {
	Ranking []scores.Score `json:"ranking"`
	Softmax bool           `json:"softmax"`
}

func (s *Server) handleShapeRank(args json.RawMessage) (interface{}, error) {
	var a shapeRankArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}

	img, err := s.loadRegion(a.Path, a.regionArgs)
	if err != nil {
		return nil, err
	}

	out, err := s.classifier.Scores(img)
	if err != nil {
		return nil, err
	}
	if a.Softmax {
		out = scores.Softmax(out)
	}

	ranking, err := scores.Rank(out, s.classifier.Labels(), a.TopN)
	if err != nil {
		return nil, err
	}
	return rankResult{Ranking: ranking, Softmax: a.Softmax}, nil
}

type shapeClassifyFrameArgs struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (s *Server) handleShapeClassifyFrame(args json.RawMessage) (interface{}, error) {
	var a shapeClassifyFrameArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Format == "" {
		a.Format = "nv21"
	}
	format, err := frame.ParseFormat(a.Format)
	if err != nil {
		return nil, err
	}
	if err := frame.CheckDimensions(a.Width, a.Height); err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	if want := format.FrameSize(a.Width, a.Height); len(buf) != want {
		return nil, fmt.Errorf("%w: %s frame of %dx%d needs %d bytes, file has %d",
			frame.ErrMalformedFrame, format, a.Width, a.Height, want, len(buf))
	}

	res, err := s.classifier.Process(frame.FromBuffer(buf, format, a.Width, a.Height))
	if err != nil {
		return nil, err
	}
	return classifyResult{
		Label:     res.Label,
		Index:     res.Index,
		Score:     res.Score,
		Ranking:   res.Ranking,
		LatencyMs: float64(res.Latency.Microseconds()) / 1000,
	}, nil
}

type pipelineInfoResult struct {
	Version string            `json:"version"`
	Calls   map[string]uint64 `json:"calls"`
	pipeline.Info
}

func (s *Server) handlePipelineInfo() (interface{}, error) {
	calls := make(map[string]uint64, len(s.calls))
	for k, v := range s.calls {
		calls[k] = v
	}
	return pipelineInfoResult{
		Version: s.version,
		Calls:   calls,
		Info:    s.classifier.Info(),
	}, nil
}
