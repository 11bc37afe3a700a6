package classify

import (
	"encoding/json"
	"fmt"

	"github.com/okian/pointbin/internal/domain/model"
)

// Normalize reduces a classifier response body to a Prediction.
//
// Supported shapes:
//   - {"predictions": [{"class"|"label": ..., "confidence": ...}, ...]}
//   - {"predictions": {"label": 0.9, ...}} or {"predictions": {"label": {"confidence": 0.9}}}
//   - a top-level list of prediction objects
//
// Any other valid JSON yields an empty Prediction. Only a body that is not
// JSON at all is an error.
func Normalize(raw []byte) (model.Prediction, error) {
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return model.Prediction{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch v := body.(type) {
	case []any:
		return fromList(v), nil
	case map[string]any:
		switch preds := v["predictions"].(type) {
		case []any:
			return fromList(preds), nil
		case map[string]any:
			return fromMapping(preds), nil
		}
	}
	return model.Prediction{}, nil
}

func fromList(items []any) model.Prediction {
	var (
		out   model.Prediction
		found bool
	)
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out.Count++
		conf, _ := number(obj["confidence"])
		if found && conf <= out.TopConfidence {
			continue
		}
		found = true
		out.TopConfidence = conf
		out.TopClass = label(obj)
	}
	return out
}

func fromMapping(items map[string]any) model.Prediction {
	var (
		out   model.Prediction
		found bool
	)
	for name, v := range items {
		conf, ok := number(v)
		if !ok {
			obj, isObj := v.(map[string]any)
			if !isObj {
				continue
			}
			if conf, ok = number(obj["confidence"]); !ok {
				continue
			}
		}
		out.Count++
		// ties resolve to the lexically smaller label so map order never matters
		if found && (conf < out.TopConfidence || (conf == out.TopConfidence && name > out.TopClass)) {
			continue
		}
		found = true
		out.TopConfidence = conf
		out.TopClass = name
	}
	return out
}

func label(obj map[string]any) string {
	if s, ok := obj["class"].(string); ok && s != "" {
		return s
	}
	if s, ok := obj["label"].(string); ok {
		return s
	}
	return ""
}

func number(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
