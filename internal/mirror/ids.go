package mirror

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ID is a numeric identifier that decodes from a JSON number or a numeric
// string. Older writers stored participant and sender ids as strings.
type ID uint

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f == float64(uint64(f)) {
		*id = ID(uint64(f))
		return nil
	}
	return errors.Errorf("mirror: cannot decode id from %s", string(b))
}

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// IDs converts a decoded list into plain uints.
func IDs(list []ID) []uint {
	out := make([]uint, len(list))
	for i, id := range list {
		out[i] = uint(id)
	}
	return out
}

// DecodeIDs reads a list of ids out of a raw JSON array.
func DecodeIDs(raw json.RawMessage) ([]uint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []ID
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.Wrap(err, "mirror: decode id list")
	}
	return IDs(list), nil
}
