// Package codec converts annotations to and from the native JSON, YOLO and
// COCO interchange formats and runs the import and export pipelines.
package codec

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path"
	"strconv"
	"strings"

	"github.com/lewtec/demarcador/internal/domain"
)

// Format names an interchange format
type Format string

const (
	FormatAuto Format = "auto"
	FormatJSON Format = "json"
	FormatYOLO Format = "yolo"
	FormatCOCO Format = "coco"
)

// ParseFormat accepts a format name, empty meaning auto
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatJSON, FormatYOLO, FormatCOCO:
		return f, nil
	}
	return "", domain.Validationf("unknown format %q", s)
}

// Detect resolves the format of data. An explicit format is returned as is;
// auto looks at the file extension and then at the content, failing when
// the content matches no format.
func Detect(format Format, name string, data []byte) (Format, error) {
	if format != "" && format != FormatAuto {
		return format, nil
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".txt":
		return FormatYOLO, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &keys); err != nil {
			return "", domain.Validationf("cannot detect format: invalid JSON: %v", err)
		}
		_, hasImages := keys["images"]
		_, hasAnnotations := keys["annotations"]
		switch {
		case hasImages:
			return FormatCOCO, nil
		case hasAnnotations:
			return FormatJSON, nil
		}
		return "", domain.Validationf("cannot detect format: JSON object has neither COCO nor native keys")
	}
	if looksLikeYOLO(trimmed) {
		return FormatYOLO, nil
	}
	return "", domain.Validationf("cannot detect format of %q", name)
}

func looksLikeYOLO(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		for _, f := range fields {
			if _, err := strconv.ParseFloat(f, 64); err != nil {
				return false
			}
		}
	}
	return scanner.Err() == nil
}

// Extension returns the file extension used for a format
func (f Format) Extension() string {
	if f == FormatYOLO {
		return ".txt"
	}
	return ".json"
}
