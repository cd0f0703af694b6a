package transform

import (
	"math"
	"net/url"
	"strconv"
	"time"
)

// Names of the transformers installed by RegisterBuiltins.
const (
	StringToInteger = "StringToInteger"
	StringToFloat   = "StringToFloat"
	StringToBool    = "StringToBool"
	ISO8601Date     = "ISO8601Date"
	UnixDate        = "UnixDate"
	StringToURL     = "StringToURL"
)

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05Z0700", "2006-01-02"}

// RegisterBuiltins installs reversible transformers for common JSON encodings.
func RegisterBuiltins(r *Registry) {
	r.RegisterReversible(StringToInteger,
		Func(func(s string) (int64, bool) {
			i, err := strconv.ParseInt(s, 10, 64)
			return i, err == nil
		}),
		Func(func(i int64) (string, bool) { return strconv.FormatInt(i, 10), true }),
	)
	r.RegisterReversible(StringToFloat,
		Func(func(s string) (float64, bool) {
			f, err := strconv.ParseFloat(s, 64)
			return f, err == nil
		}),
		Func(func(f float64) (string, bool) { return strconv.FormatFloat(f, 'g', -1, 64), true }),
	)
	r.RegisterReversible(StringToBool,
		Func(func(s string) (bool, bool) {
			b, err := strconv.ParseBool(s)
			return b, err == nil
		}),
		Func(func(b bool) (string, bool) { return strconv.FormatBool(b), true }),
	)
	r.RegisterReversible(ISO8601Date,
		Func(func(s string) (time.Time, bool) {
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t, true
				}
			}
			return time.Time{}, false
		}),
		Func(func(t time.Time) (string, bool) { return t.UTC().Format(time.RFC3339), true }),
	)
	r.RegisterReversible(UnixDate,
		Func(func(f float64) (time.Time, bool) {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return time.Time{}, false
			}
			sec, frac := math.Modf(f)
			return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
		}),
		Func(func(t time.Time) (int64, bool) { return t.Unix(), true }),
	)
	r.RegisterReversible(StringToURL,
		Func(func(s string) (*url.URL, bool) {
			u, err := url.Parse(s)
			if err != nil || u.Scheme == "" {
				return nil, false
			}
			return u, true
		}),
		Func(func(u *url.URL) (string, bool) {
			if u == nil {
				return "", false
			}
			return u.String(), true
		}),
	)
}
