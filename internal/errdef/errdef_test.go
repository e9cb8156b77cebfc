package errdef

import (
	"errors"
	"os"
	"testing"
)

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	err := Wrap(CodeFilesystem, os.ErrNotExist, "read %s", "env.yaml")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped cause to be reachable, got %v", err)
	}
	if CodeOf(err) != CodeFilesystem {
		t.Fatalf("expected filesystem code, got %q", CodeOf(err))
	}
	if got := Message(err); got != "read env.yaml: file does not exist" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestWrapNilIsNil(t *testing.T) {
	t.Parallel()

	if err := Wrap(CodeHTTP, nil, "noop"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	t.Parallel()

	if code := CodeOf(errors.New("boom")); code != CodeUnknown {
		t.Fatalf("expected unknown code, got %q", code)
	}
	if code := CodeOf(New(CodeParse, "bad mode %q", "xml")); code != CodeParse {
		t.Fatalf("expected parse code, got %q", code)
	}
}
