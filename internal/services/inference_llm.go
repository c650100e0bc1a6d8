package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shpitdev/cable-intel/internal/clients/aigateway"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/normalization"
	"github.com/shpitdev/cable-intel/internal/types"
	"github.com/shpitdev/cable-intel/internal/utils"
)

const inferenceLLMTimeout = 8 * time.Second

// LLMInferenceResult is the parsed model opinion about a prompt.
type LLMInferenceResult struct {
	Confidence    float64
	Patch         *types.DraftPatch
	Uncertainties []string
	Notes         []string
}

// LLMInferencer is the model seam for the inference engine.
type LLMInferencer interface {
	Infer(ctx context.Context, prompt string) (*LLMInferenceResult, error)
}

type llmInferencer struct {
	log     *logger.Logger
	gateway aigateway.Client
	model   string
}

func NewLLMInferencer(baseLog *logger.Logger, gateway aigateway.Client) LLMInferencer {
	log := baseLog.With("component", "LLMInferencer")
	return &llmInferencer{
		log:     log,
		gateway: gateway,
		model:   utils.GetEnv("MANUAL_INFERENCE_MODEL", "", log),
	}
}

const inferenceSystemPrompt = `You interpret a free-text description of a charging/data cable.
Fill only the fields the description supports; leave everything else out.
connectorFrom/connectorTo are one of: USB-C, USB-A, Lightning, Micro-USB.
watts, gbps and maxRefreshHz are plain numbers as strings. videoSupport is
"yes" or "no". List the categories you are uncertain about (power, data,
video, connector) and a confidence in [0,1].`

func inferenceSchema() map[string]interface{} {
	str := map[string]interface{}{"type": []string{"string", "null"}}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"confidence": map[string]interface{}{"type": "number"},
			"draftPatch": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"connectorFrom": str,
					"connectorTo":   str,
					"watts":         str,
					"usbGeneration": str,
					"gbps":          str,
					"videoSupport":  str,
					"maxResolution": str,
					"maxRefreshHz":  str,
					"dataOnly":      map[string]interface{}{"type": []string{"boolean", "null"}},
				},
				"additionalProperties": false,
			},
			"uncertainties": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"notes": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
		"required":             []string{"confidence", "draftPatch", "uncertainties"},
		"additionalProperties": false,
	}
}

func (l *llmInferencer) Infer(ctx context.Context, prompt string) (*LLMInferenceResult, error) {
	obj, err := l.gateway.GenerateObject(ctx, aigateway.GenerateObjectRequest{
		Model:       l.model,
		SchemaName:  "cable_inference",
		Schema:      inferenceSchema(),
		System:      inferenceSystemPrompt,
		Prompt:      fmt.Sprintf("Cable description: %s", prompt),
		Temperature: 0,
		MaxRetries:  1,
		Timeout:     inferenceLLMTimeout,
	})
	if err != nil {
		return nil, err
	}
	return coerceLLMResult(obj), nil
}

// coerceLLMResult parses the model payload defensively: numbers may arrive
// as strings or floats, connector names may be misspelled, category names
// may be loose synonyms. Nothing here fails; unusable fields are dropped.
func coerceLLMResult(obj map[string]interface{}) *LLMInferenceResult {
	out := &LLMInferenceResult{Patch: &types.DraftPatch{}}

	out.Confidence = coerceFloat(obj["confidence"])
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}

	if patch, ok := obj["draftPatch"].(map[string]interface{}); ok {
		out.Patch.ConnectorFrom = coerceConnector(patch["connectorFrom"])
		out.Patch.ConnectorTo = coerceConnector(patch["connectorTo"])
		out.Patch.Watts = coerceNumericString(patch["watts"])
		out.Patch.USBGeneration = coerceString(patch["usbGeneration"])
		out.Patch.Gbps = coerceNumericString(patch["gbps"])
		out.Patch.VideoSupport = coerceYesNo(patch["videoSupport"])
		out.Patch.MaxResolution = coerceString(patch["maxResolution"])
		out.Patch.MaxRefreshHz = coerceNumericString(patch["maxRefreshHz"])
		if b, ok := patch["dataOnly"].(bool); ok {
			out.Patch.DataOnly = &b
		}
	}

	if list, ok := obj["uncertainties"].([]interface{}); ok {
		seen := map[string]bool{}
		for _, item := range list {
			s, _ := item.(string)
			cat := coerceCategory(s)
			if cat == "" || seen[cat] {
				continue
			}
			seen[cat] = true
			out.Uncertainties = append(out.Uncertainties, cat)
		}
	}
	if list, ok := obj["notes"].([]interface{}); ok {
		for _, item := range list {
			if s, _ := item.(string); strings.TrimSpace(s) != "" {
				out.Notes = append(out.Notes, strings.TrimSpace(s))
			}
		}
	}
	return out
}

func coerceFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return 0
}

func coerceString(v interface{}) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func coerceNumericString(v interface{}) *string {
	switch t := v.(type) {
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return &s
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return nil
		}
		if n := normalization.ParsePositiveNumber(t); n != nil {
			s := strconv.FormatFloat(*n, 'f', -1, 64)
			return &s
		}
	}
	return nil
}

func coerceConnector(v interface{}) *string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	norm := normalization.NormalizeConnector(s)
	if norm == normalization.ConnectorUnknown {
		return nil
	}
	return &norm
}

func coerceYesNo(v interface{}) *string {
	switch t := v.(type) {
	case bool:
		s := "no"
		if t {
			s = "yes"
		}
		return &s
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "true", "y", "supported":
			s := "yes"
			return &s
		case "no", "false", "n", "unsupported":
			s := "no"
			return &s
		}
	}
	return nil
}

func coerceCategory(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "power", "charging", "watts", "wattage":
		return types.UncertaintyPower
	case "data", "speed", "throughput", "bandwidth":
		return types.UncertaintyData
	case "video", "display", "monitor":
		return types.UncertaintyVideo
	case "connector", "connectors", "plug", "ports":
		return types.UncertaintyConnector
	}
	return ""
}
