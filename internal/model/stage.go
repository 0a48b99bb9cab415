package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Stage is a processing stage that the backend reports as a string, a number or null.
// Numbers are kept as their canonical decimal text, so 2, 2.0, 2e0 and "2"
// all compare equal. Strings are kept verbatim.
type Stage struct {
	value string
	valid bool
}

// NullStage is the absent stage.
var NullStage = Stage{}

// StageOf returns a non-null stage with the given text.
func StageOf(s string) Stage {
	return Stage{value: s, valid: true}
}

// StageOfInt returns a non-null numeric stage.
func StageOfInt(n int64) Stage {
	return Stage{value: strconv.FormatInt(n, 10), valid: true}
}

// IsNull reports whether the stage is absent.
func (s Stage) IsNull() bool {
	return !s.valid
}

// String returns the stage text, or "null".
func (s Stage) String() string {
	if !s.valid {
		return "null"
	}
	return s.value
}

// UnmarshalJSON accepts a JSON string, number or null.
func (s *Stage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = NullStage
		return nil
	}

	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("stage: %w", err)
		}
		*s = StageOf(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("stage: expected string, number or null: %w", err)
	}
	d, err := decimal.NewFromString(num.String())
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	*s = StageOf(d.String())
	return nil
}

// MarshalJSON writes null for the absent stage and a string otherwise.
func (s Stage) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}
