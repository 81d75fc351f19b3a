package vision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/spyglass/api/schemas"
)

// coordPattern matches bare [ymin, xmin, ymax, xmax] runs in free text.
var coordPattern = regexp.MustCompile(`\[\s*\d+\s*,\s*\d+\s*,\s*\d+\s*,\s*\d+\s*\]`)

// rawBox is the structured item shape the model returns when it cooperates.
type rawBox struct {
	Box2D [4]int `json:"box_2d"`
	Label string `json:"label"`
}

// ParseBoundingBoxes extracts bounding boxes from a model reply. Structured
// JSON is preferred; free text falls back to regex extraction. Boxes that
// fail validation are dropped. Missing labels become "Object N".
func ParseBoundingBoxes(text string) []schemas.BoundingBox {
	cleaned := stripFences(text)

	if boxes, ok := parseJSON(cleaned); ok {
		return boxes
	}
	return parseFreeText(text)
}

// stripFences removes a surrounding markdown code block if present.
func stripFences(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

func parseJSON(cleaned string) ([]schemas.BoundingBox, bool) {
	var boxes []schemas.BoundingBox

	// A list of {box_2d, label} objects or bare 4-int arrays.
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &items); err == nil {
		for _, item := range items {
			if box, ok := parseItem(item, len(boxes)); ok {
				boxes = append(boxes, box)
			}
		}
		return boxes, true
	}

	// A single {box_2d, label} object.
	var single rawBox
	if err := json.Unmarshal([]byte(cleaned), &single); err == nil && single.Box2D != [4]int{} {
		box := toBoundingBox(single, 0)
		if box.Validate() == nil {
			boxes = append(boxes, box)
		}
		return boxes, true
	}
	return nil, false
}

func parseItem(item json.RawMessage, index int) (schemas.BoundingBox, bool) {
	var structured rawBox
	if err := json.Unmarshal(item, &structured); err == nil && structured.Box2D != [4]int{} {
		box := toBoundingBox(structured, index)
		return box, box.Validate() == nil
	}

	var coords [4]int
	if err := json.Unmarshal(item, &coords); err == nil {
		box := schemas.BoundingBox{
			Box2D: coords,
			Label: defaultLabel(index),
		}
		return box, box.Validate() == nil
	}
	return schemas.BoundingBox{}, false
}

func parseFreeText(text string) []schemas.BoundingBox {
	var boxes []schemas.BoundingBox
	for _, match := range coordPattern.FindAllString(text, -1) {
		var coords [4]int
		if err := json.Unmarshal([]byte(match), &coords); err != nil {
			continue
		}
		box := schemas.BoundingBox{
			Box2D: coords,
			Label: defaultLabel(len(boxes)),
		}
		if box.Validate() == nil {
			boxes = append(boxes, box)
		}
	}
	return boxes
}

func toBoundingBox(raw rawBox, index int) schemas.BoundingBox {
	label := raw.Label
	if label == "" {
		label = defaultLabel(index)
	}
	return schemas.BoundingBox{Box2D: raw.Box2D, Label: label}
}

func defaultLabel(index int) string {
	return fmt.Sprintf("Object %d", index+1)
}
