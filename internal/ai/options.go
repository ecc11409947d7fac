package ai

import "strconv"

// Sampling parameter bounds. Values outside these ranges fall back to the
// option's default rather than erroring.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinTopP        = 0.0 // exclusive
	MaxTopP        = 1.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 8192
)

const (
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultMaxTokens   = 1024
)

// Options carries the per-request generation settings forwarded to a provider.
type Options struct {
	Model       string
	System      string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// DefaultOptions returns Options with the sampling defaults filled in.
func DefaultOptions() Options {
	return Options{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		TopP:        DefaultTopP,
	}
}

// Merge overlays raw request values onto o. Each field is coerced and clamped
// independently; a missing, non-numeric, or out-of-range value leaves the
// existing setting in place.
func (o Options) Merge(model, system string, temperature, maxTokens, topP any) Options {
	if model != "" {
		o.Model = model
	}
	if system != "" {
		o.System = system
	}
	if v, ok := toFloat(temperature); ok && v >= MinTemperature && v <= MaxTemperature {
		o.Temperature = v
	}
	if v, ok := toFloat(maxTokens); ok {
		n := int(v)
		if n >= MinMaxTokens && n <= MaxMaxTokens {
			o.MaxTokens = n
		}
	}
	if v, ok := toFloat(topP); ok && v > MinTopP && v <= MaxTopP {
		o.TopP = v
	}
	return o
}

// toFloat coerces the value shapes encoding/json produces for untyped fields.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
