package configcheck

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"

	"github.com/gh-nvat/iacguard/src/pkg/models"
)

// ErrUnsupportedFormat indicates a config file extension with no decoder
var ErrUnsupportedFormat = errors.New("unsupported config file format")

// LoadConfig reads a ConfigObject from a .yaml/.yml, .json or .tfvars/.hcl file.
// Unknown keys are ignored so a full terraform.tfvars can be validated as-is.
func LoadConfig(path string) (*models.ConfigObject, error) {
	logger.WithField("path", path).Info("LoadConfig: starting...")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := DecodeConfig(path, data)
	if err != nil {
		return nil, err
	}
	logger.WithField("path", path).Info("LoadConfig: done.")
	return cfg, nil
}

// DecodeConfig decodes data according to the extension of filename
func DecodeConfig(filename string, data []byte) (*models.ConfigObject, error) {
	cfg := &models.ConfigObject{}
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse json config: %w", err)
		}
	case ".tfvars", ".hcl":
		if err := decodeTfvars(filename, data, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return cfg, nil
}

// decodeTfvars evaluates each top-level attribute as a literal and re-decodes the
// resulting object through its JSON form, so tfvars share the json field names.
func decodeTfvars(filename string, data []byte, cfg *models.ConfigObject) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse tfvars config: %s", diags.Error())
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return fmt.Errorf("failed to read tfvars attributes: %s", diags.Error())
	}

	values := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("failed to evaluate tfvars attribute %s: %s", name, diags.Error())
		}
		values[name] = val
	}

	raw, err := ctyjson.SimpleJSONValue{Value: cty.ObjectVal(values)}.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to convert tfvars to json: %w", err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to decode tfvars config: %w", err)
	}
	return nil
}
