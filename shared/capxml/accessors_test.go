package capxml

import (
	"errors"
	"testing"
	"time"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
  <identifier> ABC-123 </identifier>
  <sender>w-nws.webmaster@noaa.gov</sender>
  <sent>2023-06-01T12:00:00-05:00</sent>
  <note></note>
  <code>IPAWSv1.0</code>
  <code>  </code>
  <code>PAAQ</code>
  <info>
    <event>Flood Warning</event>
    <area>
      <areaDesc>Harris</areaDesc>
      <altitude>1500.7</altitude>
      <ceiling>abc</ceiling>
    </area>
  </info>
  <info><event>Second</event></info>
</alert>`

func mustParse(t *testing.T, raw string) *Document {
	t.Helper()
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("expected document to parse, got %s\n", err)
	}
	return doc
}

func TestAccessors(t *testing.T) {
	doc := mustParse(t, sample)

	t.Run("optional text is trimmed", func(t *testing.T) {
		id := doc.OptionalText(doc.Root, "cap:identifier")
		if id == nil || *id != "ABC-123" {
			t.Fatalf("expected ABC-123, got %v\n", id)
		}
	})

	t.Run("empty and missing elements are absent", func(t *testing.T) {
		if n := doc.OptionalText(doc.Root, "cap:note"); n != nil {
			t.Fatalf("expected nil note, got %q\n", *n)
		}
		if s := doc.OptionalText(doc.Root, "cap:source"); s != nil {
			t.Fatalf("expected nil source, got %q\n", *s)
		}
	})

	t.Run("required text reports the path", func(t *testing.T) {
		_, err := doc.RequiredText(doc.Root, "cap:scope")
		var missing *MissingFieldError
		if !errors.As(err, &missing) || missing.Path != "cap:scope" {
			t.Fatalf("expected MissingFieldError for cap:scope, got %v\n", err)
		}
	})

	t.Run("all text skips empty matches and keeps order", func(t *testing.T) {
		codes := doc.AllText(doc.Root, "cap:code")
		if len(codes) != 2 || codes[0] != "IPAWSv1.0" || codes[1] != "PAAQ" {
			t.Fatalf("expected [IPAWSv1.0 PAAQ], got %v\n", codes)
		}
	})

	t.Run("all returns sub blocks for recursion", func(t *testing.T) {
		infos := doc.All(doc.Root, "cap:info")
		if len(infos) != 2 {
			t.Fatalf("expected 2 info blocks, got %d\n", len(infos))
		}
		if ev := doc.OptionalText(infos[1], "cap:event"); ev == nil || *ev != "Second" {
			t.Fatalf("expected Second, got %v\n", ev)
		}
	})

	t.Run("decimal integers are truncated", func(t *testing.T) {
		area := doc.All(doc.Root, "cap:info/cap:area")[0]
		alt, err := doc.OptionalInt(area, "cap:altitude")
		if err != nil || alt == nil || *alt != 1500 {
			t.Fatalf("expected 1500, got %v %v\n", alt, err)
		}
	})

	t.Run("non numeric integer is a MalformedNumberError", func(t *testing.T) {
		area := doc.All(doc.Root, "cap:info/cap:area")[0]
		_, err := doc.OptionalInt(area, "cap:ceiling")
		var bad *MalformedNumberError
		if !errors.As(err, &bad) || bad.Text != "abc" {
			t.Fatalf("expected MalformedNumberError for abc, got %v\n", err)
		}
	})

	t.Run("dates keep their offset", func(t *testing.T) {
		sent := doc.OptionalDate(doc.Root, "cap:sent")
		want := time.Date(2023, 6, 1, 17, 0, 0, 0, time.UTC)
		if sent == nil || !sent.Equal(want) {
			t.Fatalf("expected %s, got %v\n", want, sent)
		}
	})
}

func TestParse(t *testing.T) {
	t.Run("documents without a namespace are accepted", func(t *testing.T) {
		doc := mustParse(t, `<alert><identifier>x</identifier></alert>`)
		if id := doc.OptionalText(doc.Root, "cap:identifier"); id == nil || *id != "x" {
			t.Fatalf("expected x, got %v\n", id)
		}
	})

	t.Run("older cap namespaces are accepted", func(t *testing.T) {
		doc := mustParse(t, `<alert xmlns="urn:oasis:names:tc:emergency:cap:1.1"><identifier>y</identifier></alert>`)
		if id := doc.OptionalText(doc.Root, "cap:identifier"); id == nil || *id != "y" {
			t.Fatalf("expected y, got %v\n", id)
		}
	})

	t.Run("malformed xml is a SyntaxError", func(t *testing.T) {
		_, err := Parse(`<alert><identifier>x</alert>`)
		var syn *SyntaxError
		if !errors.As(err, &syn) {
			t.Fatalf("expected SyntaxError, got %v\n", err)
		}
	})

	t.Run("a non alert root is rejected", func(t *testing.T) {
		_, err := Parse(`<feed/>`)
		var missing *MissingFieldError
		if !errors.As(err, &missing) {
			t.Fatalf("expected MissingFieldError, got %v\n", err)
		}
	})
}

func TestParseTime(t *testing.T) {
	for _, text := range []string{
		"2023-06-01T12:00:00-05:00",
		"2023-06-01T17:00:00Z",
		"2023-06-01T17:00:00.000Z",
		"2023-06-01T12:00:00-0500",
	} {
		got, ok := ParseTime(text)
		if !ok || !got.Equal(time.Date(2023, 6, 1, 17, 0, 0, 0, time.UTC)) {
			t.Fatalf("expected %s to parse to 17:00 UTC, got %s %v\n", text, got, ok)
		}
	}

	if _, ok := ParseTime("June 1st"); ok {
		t.Fatalf("expected free text to be rejected\n")
	}

	naive, ok := ParseTime("2023-06-01T17:00:00")
	if !ok || naive.Location() != time.UTC {
		t.Fatalf("expected naive timestamp in UTC, got %s %v\n", naive, ok)
	}
}
