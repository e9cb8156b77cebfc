package httpclient

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"syscall"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
)

type FileSystem interface {
	ReadFile(name string) ([]byte, error)
}

type OSFileSystem struct{}

func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func readAttachment(fsys FileSystem, path, label string) ([]byte, error) {
	if fsys == nil {
		return nil, errdef.New(errdef.CodeFilesystem, "file reader unavailable")
	}
	if strings.TrimSpace(path) == "" {
		return nil, errdef.New(errdef.CodeFilesystem, "%s path is empty", label)
	}
	data, err := fsys.ReadFile(path)
	if err == nil {
		return data, nil
	}
	switch {
	case isPerm(err):
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read %s %s: permission denied", label, path)
	case isDirErr(err):
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read %s %s: is a directory", label, path)
	default:
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read %s %s", label, path)
	}
}

func isPerm(err error) bool {
	return errors.Is(err, os.ErrPermission) || errors.Is(err, fs.ErrPermission)
}

func isDirErr(err error) bool {
	if errors.Is(err, syscall.EISDIR) {
		return true
	}
	var pe *fs.PathError
	if errors.As(err, &pe) && errors.Is(pe.Err, syscall.EISDIR) {
		return true
	}
	return false
}
