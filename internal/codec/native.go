package codec

import (
	"encoding/json"
	"fmt"

	"github.com/lewtec/demarcador/internal/domain"
)

type nativeDocument struct {
	Annotations []domain.Annotation `json:"annotations"`
}

// EncodeNative writes annotations as the native JSON document
func EncodeNative(anns []domain.Annotation) ([]byte, error) {
	if anns == nil {
		anns = []domain.Annotation{}
	}
	data, err := json.MarshalIndent(nativeDocument{Annotations: anns}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("while encoding annotations: %w", err)
	}
	return data, nil
}

// DecodeNative reads a native JSON document. The annotations key is required.
func DecodeNative(data []byte) ([]domain.Annotation, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.Validationf("invalid JSON: %v", err)
	}
	body, ok := raw["annotations"]
	if !ok || string(body) == "null" {
		return nil, domain.Validationf("missing \"annotations\" array")
	}
	var anns []domain.Annotation
	if err := json.Unmarshal(body, &anns); err != nil {
		return nil, domain.Validationf("invalid \"annotations\" array: %v", err)
	}
	return anns, nil
}
