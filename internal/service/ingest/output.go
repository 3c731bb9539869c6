package ingest

import (
	"github.com/ashita-ai/jobwatch/internal/export"
)

// writeOutputs refreshes the output files with the postings this run
// included; new_jobs holds the included postings first seen by this run.
func writeOutputs(dir string, outcomes []outcome) error {
	var all, fresh []export.Row
	for _, o := range outcomes {
		if !o.decision.Included {
			continue
		}
		row := export.NewRow(o.key, o.firstSeen, o.posting)
		all = append(all, row)
		if o.isNew {
			fresh = append(fresh, row)
		}
	}
	return export.WriteRunFiles(dir, all, fresh)
}
