package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSegment(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	w, err := Create(path)
	require.NoError(t, err)
	for _, l := range lines {
		require.NoError(t, w.WriteLine([]byte(l)))
	}
	require.NoError(t, w.Close())
	return path
}

func TestRoundTripByExtension(t *testing.T) {
	lines := []string{
		`{"originalMessage":"<alert/>","id":1}`,
		``,
		`{"originalMessage":"<alert></alert>","id":2}`,
	}
	for _, name := range []string{
		SegmentName("2023", 1),
		"IpawsArchivedAlerts_2023_002.jsonl.gz",
		"IpawsArchivedAlerts_2023_003.jsonl.zst",
		"IpawsArchivedAlerts_2023_004.jsonl",
	} {
		t.Run(name, func(t *testing.T) {
			path := writeSegment(t, name, lines...)

			var got []Record
			for rec, err := range Records(path) {
				require.NoError(t, err)
				got = append(got, rec)
			}
			require.Len(t, got, 2)
			require.Equal(t, 1, got[0].Line)
			require.Equal(t, 3, got[1].Line)
			require.Equal(t, lines[2], string(got[1].Raw))

			n, err := Count(path)
			require.NoError(t, err)
			require.Equal(t, 2, n)
		})
	}
}

func TestCorruptCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "IpawsArchivedAlerts_2023_009.jsonl.xz")
	require.NoError(t, os.WriteFile(path, []byte("definitely not xz"), 0o644))

	_, err := Count(path)
	require.Error(t, err)

	var sawErr bool
	for _, err := range Records(path) {
		if err != nil {
			sawErr = true
		}
	}
	require.True(t, sawErr)
}

func TestMissingFile(t *testing.T) {
	_, err := Count(filepath.Join(t.TempDir(), "nope.jsonl.xz"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMessage(t *testing.T) {
	t.Run("extracts the document", func(t *testing.T) {
		msg, err := Message([]byte(`{"id":"x","originalMessage":"<alert xmlns=\"urn:oasis:names:tc:emergency:cap:1.2\"/>"}`))
		require.NoError(t, err)
		require.Equal(t, `<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2"/>`, msg)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := Message([]byte(`{"originalMessage":`))
		require.ErrorIs(t, err, ErrInvalidJSON)
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := Message([]byte(`{"id":"x"}`))
		require.ErrorIs(t, err, ErrNoMessage)
	})

	t.Run("non string field", func(t *testing.T) {
		_, err := Message([]byte(`{"originalMessage":42}`))
		require.ErrorIs(t, err, ErrNoMessage)
	})
}
