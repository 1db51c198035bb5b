package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// QueryRequest is a query described in a request file, for use with
// --file instead of flags.
type QueryRequest struct {
	Locale         string         `yaml:"locale" json:"locale"`
	Text           string         `yaml:"text" json:"text"`
	ConversationID string         `yaml:"conversation_id" json:"conversationId"`
	Context        map[string]any `yaml:"context" json:"context"`
}

// LoadRequest loads a YAML or JSON request file into v. A path of "-"
// reads stdin.
func LoadRequest(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	return ParseRequest(data, path, v)
}

// ParseRequest decodes data by the extension of filename, trying YAML and
// then JSON when the extension says neither.
func ParseRequest(data []byte, filename string, v any) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, v); err != nil {
			if err2 := json.Unmarshal(data, v); err2 != nil {
				return errors.New("failed to parse request (tried YAML and JSON)")
			}
		}
	}
	return nil
}
