// Package identity builds canonical keys for identity tuples.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Key returns a canonical string for a tuple of identity values. Values of
// different Go types never collide, and each component is length-prefixed
// so tuples cannot run into each other. It reports false when any component
// is nil.
func Key(values ...any) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, v := range values {
		if v == nil {
			return "", false
		}
		tag, text := encode(v)
		b.WriteString(tag)
		b.WriteString(strconv.Itoa(len(text)))
		b.WriteByte(':')
		b.WriteString(text)
	}
	return b.String(), true
}

func encode(v any) (string, string) {
	switch t := v.(type) {
	case string:
		return "s", t
	case int64:
		return "i", strconv.FormatInt(t, 10)
	case int:
		return "i", strconv.Itoa(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return "i", strconv.FormatInt(int64(t), 10)
		}
		return "f", strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return "b", strconv.FormatBool(t)
	case time.Time:
		return "t", strconv.FormatInt(t.UnixNano(), 10)
	case []byte:
		return "x", hex.EncodeToString(t)
	}
	return "v", fmt.Sprintf("%T:%v", v, v)
}

// Hash returns a 128-bit hex digest of an identity key scoped to an entity
// family. It is the value persisted alongside objects for identity lookups.
func Hash(family, key string) string {
	h := sha256.Sum256([]byte(family + "#" + key))
	return hex.EncodeToString(h[:16])
}
