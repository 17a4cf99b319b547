// Package window persists the last known window placement as a small JSON
// file of the form {"x": 10, "y": 20, "version": "1.0.0"}.
package window

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Position is the persisted placement
type Position struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Version string `json:"version"`
}

// Store reads and writes one position file
type Store struct {
	path    string
	version string
}

// NewStore creates a Store for path. version is written with every save.
func NewStore(path, version string) *Store {
	return &Store{path: path, version: version}
}

// Path returns the file location
func (s *Store) Path() string {
	return s.path
}

// Load returns the saved position. found is false when the file is absent
// or carries no usable coordinates. A file that cannot be parsed is deleted
// and the parse error returned so the caller can log it.
func (s *Store) Load() (pos Position, found bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("failed to read position file: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		removeErr := os.Remove(s.path)
		return Position{}, false, errors.Join(fmt.Errorf("malformed position file: %w", err), removeErr)
	}

	x, xok := asInt(raw["x"])
	y, yok := asInt(raw["y"])

	// older files stored a window geometry string such as "540x440+120+80"
	if geo, isString := raw["geometry"].(string); isString && (!xok || !yok) {
		if gx, gy, ok := ParseGeometry(geo); ok {
			if !xok {
				x, xok = gx, true
			}
			if !yok {
				y, yok = gy, true
			}
		}
	}

	if !xok || !yok {
		return Position{}, false, nil
	}

	version, _ := raw["version"].(string)
	return Position{X: x, Y: y, Version: version}, true, nil
}

// Save writes the position with the store's version
func (s *Store) Save(x, y int) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create position directory: %w", err)
	}

	data, err := json.MarshalIndent(Position{X: x, Y: y, Version: s.version}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode position: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write position file: %w", err)
	}
	return nil
}

// ParseGeometry extracts the offsets from a "WxH+X+Y" geometry string.
// Negative offsets ("WxH-X-Y" or "WxH+-X+-Y") are supported.
func ParseGeometry(geo string) (x, y int, ok bool) {
	cut := strings.Index(geo, "+")
	if minus := strings.Index(geo[min(1, len(geo)):], "-"); cut == -1 && minus != -1 {
		cut = minus + min(1, len(geo))
	}
	if cut == -1 {
		return 0, 0, false
	}

	normalized := strings.ReplaceAll(geo[cut:], "-", "+-")
	var parts []string
	for _, p := range strings.Split(normalized, "+") {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	if len(parts) < 2 {
		return 0, 0, false
	}

	x, errX := strconv.Atoi(parts[0])
	y, errY := strconv.Atoi(parts[1])
	if errX != nil || errY != nil {
		return 0, 0, false
	}
	return x, y, true
}

func asInt(v interface{}) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
