package pg

import "encoding/json"

// jsonArray marshals a string slice for a jsonb column. nil becomes [].
func jsonArray(ss []string) []byte {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return b
}

// scanJSONArray unmarshals a jsonb column into dst, tolerating NULL.
func scanJSONArray(raw []byte, dst *[]string) {
	if len(raw) == 0 {
		return
	}
	json.Unmarshal(raw, dst)
}

// nilStr maps "" to NULL so empty strings never occupy nullable columns.
func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
