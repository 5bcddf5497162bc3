package report

import (
	"encoding/json"
	"os"

	"github.com/ogulcanaydogan/driftgate/internal/record"
)

func WriteJSON(path string, r *record.DecisionRecord) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
