package domain

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration carried on the wire in ISO-8601 form
// ("PT30S", "PT1H5M"), the representation providers exchange for heartbeat
// and preview intervals.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string {
	v := time.Duration(d)
	if v == 0 {
		return "PT0S"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('P')
	if days := v / (24 * time.Hour); days > 0 {
		fmt.Fprintf(&b, "%dD", days)
		v -= days * 24 * time.Hour
	}
	if v > 0 {
		b.WriteByte('T')
		if h := v / time.Hour; h > 0 {
			fmt.Fprintf(&b, "%dH", h)
			v -= h * time.Hour
		}
		if m := v / time.Minute; m > 0 {
			fmt.Fprintf(&b, "%dM", m)
			v -= m * time.Minute
		}
		if v > 0 {
			fmt.Fprintf(&b, "%gS", v.Seconds())
		}
	}
	return b.String()
}

// ParseDuration accepts ISO-8601 durations and, as a convenience for local
// configuration, Go duration strings ("30s", "5m").
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if !strings.HasPrefix(s, "P") && !strings.HasPrefix(s, "-P") {
		v, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", s, err)
		}
		return Duration(v), nil
	}

	neg := false
	rest := s
	if strings.HasPrefix(rest, "-") {
		neg = true
		rest = rest[1:]
	}
	rest = rest[1:] // consume 'P'

	var total time.Duration
	inTime := false
	num := ""
	for _, c := range rest {
		switch {
		case c == 'T':
			inTime = true
		case c >= '0' && c <= '9' || c == '.':
			num += string(c)
		default:
			if num == "" {
				return 0, fmt.Errorf("parse duration %q: missing value before %q", s, c)
			}
			f, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("parse duration %q: %w", s, err)
			}
			num = ""
			var unit time.Duration
			switch {
			case c == 'D' && !inTime:
				unit = 24 * time.Hour
			case c == 'H' && inTime:
				unit = time.Hour
			case c == 'M' && inTime:
				unit = time.Minute
			case c == 'S' && inTime:
				unit = time.Second
			default:
				return 0, fmt.Errorf("parse duration %q: unsupported designator %q", s, c)
			}
			total += time.Duration(f * float64(unit))
		}
	}
	if num != "" {
		return 0, fmt.Errorf("parse duration %q: trailing value without designator", s)
	}
	if neg {
		total = -total
	}
	return Duration(total), nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(d.String(), start)
}

func (d *Duration) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := dec.DecodeElement(&s, &start); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}
