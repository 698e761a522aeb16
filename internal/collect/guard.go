// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package collect

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pdiddy/census-collector/pkg/types"
)

// defaultSizeBudget is the serialized-size ceiling applied when the
// configuration leaves it unset.
const defaultSizeBudget = 9 << 20

// Admit enforces the serialized-size budget on a mapped record. Data
// (raw values) is usually far larger than variables (definitions), but
// either may dominate depending on table shape, so dropping is staged:
// variables first, then data, each step re-measured. A record that still
// exceeds the budget after maximal degradation becomes an ErrorRecord
// carrying size diagnostics; it is never silently dropped.
func Admit(rec *types.OutputRecord, budget int) (*types.OutputRecord, *types.ErrorRecord) {
	if budget <= 0 {
		budget = defaultSizeBudget
	}

	original := serializedSize(rec)
	if original <= budget {
		return rec, nil
	}

	degraded := *rec
	degraded.Variables = nil
	degraded.VariablesOmitted = true
	if serializedSize(&degraded) <= budget {
		return &degraded, nil
	}

	degraded.Data = nil
	degraded.DataOmitted = true
	final := serializedSize(&degraded)
	if final <= budget {
		return &degraded, nil
	}

	ts := rec.FetchedAt
	if ts == "" {
		ts = mapClock().UTC().Format(time.RFC3339)
	}
	return nil, &types.ErrorRecord{
		TableID: rec.TableID,
		ErrorMessage: fmt.Sprintf(
			"record exceeds size budget after maximal degradation: original %d bytes, degraded %d bytes, budget %d bytes",
			original, final, budget),
		FetchedAt: ts,
	}
}

func serializedSize(rec *types.OutputRecord) int {
	data, err := json.Marshal(rec)
	if err != nil {
		// Record fields are plain data; marshaling cannot fail in practice.
		return int(^uint(0) >> 1)
	}
	return len(data)
}
