package ignition

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreos/butane/config"
	"github.com/coreos/butane/config/common"
	ignitionConfig "github.com/coreos/ignition/v2/config"
	"github.com/go-logr/logr"
)

// Translator turns Butane configs into validated Ignition JSON for boxes
// booted through the vagrant-ignition plugin.
type Translator struct {
	strict bool
	log    logr.Logger
}

func NewTranslator(strict bool, log logr.Logger) *Translator {
	return &Translator{strict: strict, log: log}
}

// TranslateFile reads a Butane file and returns the Ignition JSON. Local
// file references resolve relative to the Butane file's directory.
func (t *Translator) TranslateFile(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read butane config %s: %w", path, err)
	}

	ignitionJSON, err := t.Translate(content, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := t.Validate(ignitionJSON); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ignitionJSON, nil
}

// Translate converts a Butane YAML configuration to Ignition JSON
func (t *Translator) Translate(butaneYAML []byte, filesDir string) ([]byte, error) {
	options := common.TranslateBytesOptions{
		TranslateOptions: common.TranslateOptions{
			FilesDir: filesDir,
		},
		Pretty: true,
	}

	ignitionJSON, report, err := config.TranslateBytes(butaneYAML, options)
	if err != nil {
		if len(report.Entries) > 0 {
			return nil, fmt.Errorf("failed to translate butane config: %w: %s", err, strings.TrimSpace(report.String()))
		}
		return nil, fmt.Errorf("failed to translate butane config: %w", err)
	}

	var warnings []string
	var errors []string
	for _, entry := range report.Entries {
		if entry.Kind.IsFatal() {
			errors = append(errors, entry.String())
		} else {
			warnings = append(warnings, entry.String())
		}
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("butane translation failed with errors: %s", strings.Join(errors, ", "))
	}
	if t.strict && len(warnings) > 0 {
		return nil, fmt.Errorf("butane translation failed in strict mode due to warnings: %s", strings.Join(warnings, ", "))
	}
	if len(warnings) > 0 {
		t.log.Info("butane translation warnings", "warnings", warnings)
	}

	return ignitionJSON, nil
}

// Validate parses the Ignition JSON and fails on fatal report entries.
func (t *Translator) Validate(ignitionJSON []byte) error {
	_, report, err := ignitionConfig.Parse(ignitionJSON)
	if err != nil {
		return fmt.Errorf("ignition parse error: %w", err)
	}
	if report.IsFatal() {
		return fmt.Errorf("ignition validation failed: %s", report.String())
	}

	var warnings []string
	for _, entry := range report.Entries {
		if !entry.Kind.IsFatal() {
			warnings = append(warnings, entry.String())
		}
	}
	if len(warnings) > 0 {
		t.log.Info("ignition validation warnings", "warnings", warnings)
	}
	return nil
}
