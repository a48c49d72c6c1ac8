package policy

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"banker/revenue"
)

// codec holds the parse, format and repair functions for one policy type.
// repair returns the value unchanged and false when it is within bounds.
type codec[T any] struct {
	kind   Kind
	parse  func(string) (T, error)
	format func(T) string
	repair func(T) (T, bool)
}

func noRepair[T any](v T) (T, bool) {
	return v, false
}

type intBound int

const (
	boundNone intBound = iota
	boundAbsolute
	boundMinusOne
)

func intCodec(bound intBound) codec[int] {
	return codec[int]{
		kind: KindInteger,
		parse: func(s string) (int, error) {
			return strconv.Atoi(strings.TrimSpace(s))
		},
		format: strconv.Itoa,
		repair: func(v int) (int, bool) {
			switch {
			case bound == boundAbsolute && v < 0:
				return -v, true
			case bound == boundMinusOne && v < -1:
				return -1, true
			}
			return v, false
		},
	}
}

func decimalCodec(scale int32, absolute bool) codec[decimal.Decimal] {
	return codec[decimal.Decimal]{
		kind: KindDecimal,
		parse: func(s string) (decimal.Decimal, error) {
			return decimal.NewFromString(strings.TrimSpace(s))
		},
		format: func(d decimal.Decimal) string {
			return d.StringFixed(scale)
		},
		repair: func(d decimal.Decimal) (decimal.Decimal, bool) {
			repaired := false
			if absolute && d.IsNegative() {
				d = d.Abs()
				repaired = true
			}
			if -d.Exponent() > scale {
				rounded := d.RoundBank(scale)
				if !rounded.Equal(d) {
					repaired = true
				}
				d = rounded
			}
			return d, repaired
		},
	}
}

func boolCodec() codec[bool] {
	return codec[bool]{
		kind: KindBoolean,
		parse: func(s string) (bool, error) {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true", "yes", "on", "1", "y":
				return true, nil
			case "false", "no", "off", "0", "n":
				return false, nil
			}
			return false, fmt.Errorf("not a boolean")
		},
		format: strconv.FormatBool,
		repair: noRepair[bool],
	}
}

// splitList accepts "1,2,3", "[1, 2, 3]" and "1 2 3"
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
}

func intListCodec() codec[[]int] {
	return codec[[]int]{
		kind: KindIntegerList,
		parse: func(s string) ([]int, error) {
			parts := splitList(s)
			out := make([]int, 0, len(parts))
			for _, p := range parts {
				v, err := strconv.Atoi(p)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil
		},
		format: func(list []int) string {
			parts := make([]string, len(list))
			for i, v := range list {
				parts[i] = strconv.Itoa(v)
			}
			return "[" + strings.Join(parts, ", ") + "]"
		},
		repair: func(list []int) ([]int, bool) {
			repaired := false
			out := make([]int, 0, len(list))
			for _, v := range list {
				switch {
				case v == 0:
					repaired = true
					continue
				case v < 0:
					v = -v
					repaired = true
				}
				out = append(out, v)
			}
			if len(out) == 0 {
				return []int{1}, true
			}
			return out, repaired
		},
	}
}

func parseTimeOfDay(s string) (civil.Time, error) {
	if strings.Count(s, ":") == 1 {
		s += ":00"
	}
	return civil.ParseTime(s)
}

func compareTimes(a, b civil.Time) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}

func timeListCodec() codec[[]civil.Time] {
	return codec[[]civil.Time]{
		kind: KindTimeList,
		parse: func(s string) ([]civil.Time, error) {
			parts := splitList(s)
			out := make([]civil.Time, 0, len(parts))
			for _, p := range parts {
				t, err := parseTimeOfDay(p)
				if err != nil {
					return nil, err
				}
				out = append(out, t)
			}
			slices.SortFunc(out, compareTimes)
			return slices.Compact(out), nil
		},
		format: func(times []civil.Time) string {
			parts := make([]string, len(times))
			for i, t := range times {
				parts[i] = t.String()
			}
			return strings.Join(parts, ", ")
		},
		repair: noRepair[[]civil.Time],
	}
}

func formulaCodec() codec[*revenue.Expression] {
	return codec[*revenue.Expression]{
		kind:   KindFormula,
		parse:  revenue.Compile,
		format: (*revenue.Expression).String,
		repair: noRepair[*revenue.Expression],
	}
}
