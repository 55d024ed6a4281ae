package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"github.com/vbonduro/caloriesnap/internal/domain"
	"github.com/vbonduro/caloriesnap/internal/pipeline"
)

// estimateToolName is the single tool served at /tools/call.
const estimateToolName = "estimate_meal_calories"

type estimateToolParams struct {
	Image string `json:"image"`
}

type estimateToolOutput struct {
	FoodItems         domain.FoodItemList     `json:"foodItems"`
	EstimatedCalories *domain.CalorieEstimate `json:"estimatedCalories,omitempty"`
}

// handleToolCall runs the pipeline synchronously for agent callers. The
// request is a tool call whose "image" argument is a base64 data URL; the
// result's text content is the JSON outcome.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	// base64 inflates the payload by 4/3.
	r.Body = http.MaxBytesReader(w, r.Body, s.ingestor.MaxBytes()/3*4+multipartOverhead)

	var req protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.Name != estimateToolName {
		http.Error(w, fmt.Sprintf("unknown tool: %s", req.Name), http.StatusNotFound)
		return
	}

	var params estimateToolParams
	if err := extractParams(&req, &params); err != nil || params.Image == "" {
		http.Error(w, "argument \"image\" (data URL) is required", http.StatusBadRequest)
		return
	}

	asset, err := s.ingestor.IngestDataURL(params.Image)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.runner.Run(r.Context(), asset, nil)
	if err != nil {
		msg := err.Error()
		var se *pipeline.StageError
		if errors.As(err, &se) {
			msg = se.Message()
		}
		s.logger.Warn("tool call failed", "tool", req.Name, "error", err)
		http.Error(w, msg, toolErrorStatus(err))
		return
	}

	out := estimateToolOutput{FoodItems: res.Items, EstimatedCalories: res.Estimate}
	if out.FoodItems == nil {
		out.FoodItems = domain.FoodItemList{}
	}
	text, err := json.Marshal(out)
	if err != nil {
		http.Error(w, "failed to encode result", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{Type: "text", Text: string(text)},
		},
	})
}

func toolErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRemoteCall):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// extractParams decodes the tool call's arguments into target.
func extractParams(req *protocol.CallToolRequest, target any) error {
	raw, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to unmarshal arguments: %w", err)
	}
	return nil
}
