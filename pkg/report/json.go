package report

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/runningwild/diskmark/pkg/engine"
)

// WriteJSON writes records to path as an indented JSON array.
func WriteJSON(path string, records []*engine.RunRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal report")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	return nil
}
