package tokenfile

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ids.bin")
	ids := []int{1, 42, 7, 0, 31999, 1 << 20}
	if err := Write(path, ids); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(len(ids) * ElemSize); info.Size() != want {
		t.Fatalf("file size %d, want %d", info.Size(), want)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !slices.Equal(ids, got) {
		t.Fatalf("expected %v, got %v", ids, got)
	}
}

func TestReadEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Read(path)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("error %q does not name the file", err)
	}
}

func TestReadMissingSentinel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nosentinel.bin")
	if err := Write(path, []int{42, 7}); err != nil {
		t.Fatal(err)
	}

	_, err := Read(path)
	if !errors.Is(err, ErrMissingSentinel) {
		t.Fatalf("expected ErrMissingSentinel, got %v", err)
	}
	if errors.Is(err, ErrEmpty) {
		t.Fatalf("missing sentinel reported as empty: %v", err)
	}
}

func TestReadTruncated(t *testing.T) {
	t.Parallel()

	raw, err := Encode([]int{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "short.bin")
	if err := os.WriteFile(path, raw[:len(raw)-1], 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(path); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent.bin")
	_, err := Read(path)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("error %q does not name the file", err)
	}
}

func TestEncodeRejectsNegative(t *testing.T) {
	t.Parallel()

	if _, err := Encode([]int{1, -3}); !errors.Is(err, ErrNegativeID) {
		t.Fatalf("expected ErrNegativeID, got %v", err)
	}
}

func TestEncodeEmptyHasNoFraming(t *testing.T) {
	t.Parallel()

	raw, err := Encode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 0 {
		t.Fatalf("expected no bytes, got %d", len(raw))
	}
}
