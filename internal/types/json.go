package types

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// JSONFrom marshals v into a jsonb column value. Marshal failures collapse to
// SQL null, which downstream decoding treats as the zero value.
func JSONFrom(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// JSONInto decodes a jsonb column into out. Empty columns leave out untouched.
func JSONInto(j datatypes.JSON, out interface{}) {
	if len(j) == 0 {
		return
	}
	_ = json.Unmarshal(j, out)
}

func StringsFrom(j datatypes.JSON) []string {
	var out []string
	JSONInto(j, &out)
	return out
}
