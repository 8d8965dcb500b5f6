package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lewtec/demarcador/internal/domain"
)

// yoloTolerance absorbs the rounding of six-decimal label files
const yoloTolerance = 1e-6

// YOLOLabel is one parsed label line
type YOLOLabel struct {
	Line    int
	Class   int
	CenterX float64
	CenterY float64
	Width   float64
	Height  float64
}

// BBox converts the center-anchored label to a top-left normalized box
func (l YOLOLabel) BBox() domain.BBox {
	return clampBBox(domain.BBox{
		X:      l.CenterX - l.Width/2,
		Y:      l.CenterY - l.Height/2,
		Width:  l.Width,
		Height: l.Height,
	})
}

// LineError is a validation failure of one label line
type LineError struct {
	Line    int
	Content string
	Reason  string
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// EncodeYOLO writes the label file of one image. classes is the category
// id ordering defining class indices.
func EncodeYOLO(anns []domain.Annotation, classes []string) ([]byte, error) {
	index := make(map[string]int, len(classes))
	for i, id := range classes {
		index[id] = i
	}
	var buf bytes.Buffer
	for _, a := range anns {
		class, ok := index[a.CategoryID]
		if !ok {
			return nil, domain.Validationf("annotation %s: category %s has no class index", a.ID, a.CategoryID)
		}
		cx, cy := a.BBox.Center()
		fmt.Fprintf(&buf, "%d %.6f %.6f %.6f %.6f\n", class, cx, cy, a.BBox.Width, a.BBox.Height)
	}
	return buf.Bytes(), nil
}

// ParseYOLO parses a label file. Blank lines are skipped; lines failing
// validation are reported as errors and left out of the labels. A file that
// is not UTF-8 yields a single error on line 0.
func ParseYOLO(r io.Reader) ([]YOLOLabel, []LineError, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("while reading labels: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, []LineError{{Line: 0, Reason: "File encoding error: not valid UTF-8"}}, nil
	}

	var (
		labels []YOLOLabel
		errs   []LineError
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	// whole file fits, so a long line is a line error instead of ErrTooLong
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), len(data)+1)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		label, reason := parseYOLOLine(text)
		if reason != "" {
			errs = append(errs, LineError{Line: line, Content: text, Reason: reason})
			continue
		}
		label.Line = line
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("while reading labels: %w", err)
	}
	return labels, errs, nil
}

// ValidateYOLO reports every invalid line of a label file
func ValidateYOLO(r io.Reader) ([]LineError, error) {
	_, errs, err := ParseYOLO(r)
	return errs, err
}

func parseYOLOLine(text string) (YOLOLabel, string) {
	fields := strings.Fields(text)
	if len(fields) != 5 {
		return YOLOLabel{}, fmt.Sprintf("expected exactly 5 values, found %d", len(fields))
	}
	class, err := strconv.Atoi(fields[0])
	if err != nil {
		return YOLOLabel{}, fmt.Sprintf("class id must be an integer, found %q", fields[0])
	}
	if class < 0 {
		return YOLOLabel{}, fmt.Sprintf("class id must be non-negative, found %d", class)
	}

	names := [4]string{"center_x", "center_y", "width", "height"}
	var v [4]float64
	for i := range v {
		f, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil && !math.IsInf(f, 0) {
			return YOLOLabel{}, fmt.Sprintf("invalid number %q", fields[i+1])
		}
		if math.IsNaN(f) {
			return YOLOLabel{}, names[i] + " is NaN"
		}
		if math.IsInf(f, 0) {
			return YOLOLabel{}, names[i] + " is Infinity"
		}
		v[i] = f
	}
	cx, cy, w, h := v[0], v[1], v[2], v[3]

	switch {
	case w <= 0:
		return YOLOLabel{}, fmt.Sprintf("width must be > 0, found %g", w)
	case h <= 0:
		return YOLOLabel{}, fmt.Sprintf("height must be > 0, found %g", h)
	case cx < 0 || cx > 1:
		return YOLOLabel{}, fmt.Sprintf("center_x must be in [0, 1], found %g", cx)
	case cy < 0 || cy > 1:
		return YOLOLabel{}, fmt.Sprintf("center_y must be in [0, 1], found %g", cy)
	case cx-w/2 < -yoloTolerance:
		return YOLOLabel{}, fmt.Sprintf("box exceeds left edge: x_min=%.6f < 0", cx-w/2)
	case cx+w/2 > 1+yoloTolerance:
		return YOLOLabel{}, fmt.Sprintf("box exceeds right edge: x_max=%.6f > 1", cx+w/2)
	case cy-h/2 < -yoloTolerance:
		return YOLOLabel{}, fmt.Sprintf("box exceeds top edge: y_min=%.6f < 0", cy-h/2)
	case cy+h/2 > 1+yoloTolerance:
		return YOLOLabel{}, fmt.Sprintf("box exceeds bottom edge: y_max=%.6f > 1", cy+h/2)
	}
	return YOLOLabel{Class: class, CenterX: cx, CenterY: cy, Width: w, Height: h}, ""
}

// DecodeYOLO parses the label file of imageID, resolving class indices
// through classes. Invalid lines and unknown indices become record errors.
func DecodeYOLO(data []byte, imageID string, classes []string) ([]domain.Annotation, []RecordError, error) {
	decoded, errs, err := decodeYOLO(data, imageID, classes)
	return annotationsOf(decoded), errs, err
}

func decodeYOLO(data []byte, imageID string, classes []string) ([]decoded, []RecordError, error) {
	labels, lineErrs, err := ParseYOLO(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	var errs []RecordError
	for _, le := range lineErrs {
		errs = append(errs, RecordError{Record: le.Line, Err: domain.Validationf("%s", le.Reason)})
	}
	out := make([]decoded, 0, len(labels))
	for _, l := range labels {
		if l.Class >= len(classes) {
			errs = append(errs, RecordError{Record: l.Line, Err: domain.Validationf("unknown class index %d on line %d", l.Class, l.Line)})
			continue
		}
		out = append(out, decoded{record: l.Line, annotation: domain.Annotation{
			ImageID:    imageID,
			CategoryID: classes[l.Class],
			BBox:       l.BBox(),
			State:      domain.StateDraft,
		}})
	}
	return out, errs, nil
}
