package models

import (
	"errors"
	"testing"
)

func TestParseEnums(t *testing.T) {
	t.Run("known severity parses", func(t *testing.T) {
		s, err := ParseSeverity("Extreme")
		if err != nil {
			t.Fatalf("expected nil error, got %s\n", err)
		}
		if s != SeverityExtreme {
			t.Fatalf("expected Extreme, got %s\n", s)
		}
	})

	t.Run("misspelled severity is an InvalidEnumValueError", func(t *testing.T) {
		_, err := ParseSeverity("Unkown")
		var enumErr *InvalidEnumValueError
		if !errors.As(err, &enumErr) {
			t.Fatalf("expected InvalidEnumValueError, got %v\n", err)
		}
		if enumErr.Field != "severity" || enumErr.Value != "Unkown" {
			t.Fatalf("expected severity/Unkown, got %s/%s\n", enumErr.Field, enumErr.Value)
		}
	})

	t.Run("enum matching is case sensitive", func(t *testing.T) {
		if _, err := ParseStatus("actual"); err == nil {
			t.Fatalf("expected error for lowercase status\n")
		}
	})

	t.Run("both certainty spellings map to one value", func(t *testing.T) {
		a, errA := ParseCertainty("Very Likely")
		b, errB := ParseCertainty("VeryLikely")
		if errA != nil || errB != nil {
			t.Fatalf("expected nil errors, got %v %v\n", errA, errB)
		}
		if a != b || a != CertaintyVeryLikely {
			t.Fatalf("expected %q twice, got %q %q\n", CertaintyVeryLikely, a, b)
		}
		if string(a) != "VeryLikely" {
			t.Fatalf("expected the CAP 1.2 spelling to be stored, got %q\n", a)
		}
	})

	t.Run("every vocabulary rejects the empty string", func(t *testing.T) {
		parsers := map[string]func(string) error{
			"status":       func(s string) error { _, err := ParseStatus(s); return err },
			"msgType":      func(s string) error { _, err := ParseMsgType(s); return err },
			"scope":        func(s string) error { _, err := ParseScope(s); return err },
			"category":     func(s string) error { _, err := ParseCategory(s); return err },
			"responseType": func(s string) error { _, err := ParseResponseType(s); return err },
			"urgency":      func(s string) error { _, err := ParseUrgency(s); return err },
			"severity":     func(s string) error { _, err := ParseSeverity(s); return err },
			"certainty":    func(s string) error { _, err := ParseCertainty(s); return err },
		}
		for field, parse := range parsers {
			var enumErr *InvalidEnumValueError
			if err := parse(""); !errors.As(err, &enumErr) || enumErr.Field != field {
				t.Fatalf("expected InvalidEnumValueError for %s, got %v\n", field, err)
			}
		}
	})
}
