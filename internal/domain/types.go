package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ImageAsset is an uploaded photo encoded for embedding in a model request.
// It is immutable once created.
type ImageAsset struct {
	mediaType string
	encoded   string
}

// NewImageAsset base64-encodes raw image bytes under the given media type.
func NewImageAsset(mediaType string, raw []byte) *ImageAsset {
	return &ImageAsset{
		mediaType: mediaType,
		encoded:   base64.StdEncoding.EncodeToString(raw),
	}
}

func (a *ImageAsset) MediaType() string { return a.mediaType }

func (a *ImageAsset) Base64() string { return a.encoded }

// DataURL returns the asset as an RFC 2397 data URL.
func (a *ImageAsset) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", a.mediaType, a.encoded)
}

// Bytes decodes the payload back to raw image bytes.
func (a *ImageAsset) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.encoded)
}

// FoodItemList is the ordered list of food labels identified in a photo.
// An empty list is valid and means nothing was recognized.
type FoodItemList []string

// Joined renders the list the way the estimation prompt expects it.
func (l FoodItemList) Joined() string {
	return strings.Join(l, ", ")
}

// CalorieEstimate is the model's free-text calorie breakdown.
type CalorieEstimate string

type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

type Stage string

const (
	StageIdentifying Stage = "identifying"
	StageEstimating  Stage = "estimating"
)

// PipelineState is a snapshot of one session's pipeline. Which fields are
// populated depends on Status:
//
//	idle        Notice (only after a rejected upload)
//	processing  Stage
//	succeeded   FoodItems, Estimate (nil when FoodItems is empty)
//	failed      Error
type PipelineState struct {
	Status    Status           `json:"status"`
	Run       uint64           `json:"run"`
	Stage     Stage            `json:"stage,omitempty"`
	FoodItems FoodItemList     `json:"foodItems,omitempty"`
	Estimate  *CalorieEstimate `json:"estimatedCalories,omitempty"`
	Error     string           `json:"error,omitempty"`
	Notice    string           `json:"notice,omitempty"`
}

// Settled reports whether no run is in flight.
func (s PipelineState) Settled() bool {
	return s.Status != StatusProcessing
}

// Clone returns a copy that shares no mutable memory with s.
func (s PipelineState) Clone() PipelineState {
	out := s
	if s.FoodItems != nil {
		out.FoodItems = append(FoodItemList(nil), s.FoodItems...)
	}
	if s.Estimate != nil {
		est := *s.Estimate
		out.Estimate = &est
	}
	return out
}
