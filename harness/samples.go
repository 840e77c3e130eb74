package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joncooperworks/xmlharness/resolve"
)

// RequiredFixture must exist under the samples directory.
const RequiredFixture = "data/books.xml"

// ConfigError is a fatal problem with the environment, found before any
// scenario runs.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ResolveSamplesDir turns the -dir argument, or home/samples when it is empty,
// into a directory file URI. dir may be a local path or a file URI. The
// directory must contain RequiredFixture.
func ResolveSamplesDir(dir, home string) (string, error) {
	if dir == "" {
		if home == "" {
			return "", &ConfigError{Reason: "no samples directory supplied and XMLHARNESS_HOME is not set"}
		}
		dir = filepath.Join(home, "samples")
	}
	if strings.HasPrefix(dir, "file:") {
		p, ok := resolve.LocalPath(dir)
		if !ok {
			return "", &ConfigError{Reason: fmt.Sprintf("invalid URI for samples directory: %s", dir)}
		}
		dir = p
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", &ConfigError{Reason: "cannot resolve samples directory " + dir, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", &ConfigError{Reason: "cannot read samples directory " + abs, Err: err}
	}
	if !info.IsDir() {
		return "", &ConfigError{Reason: abs + " is not a directory"}
	}
	if _, err := os.Stat(filepath.Join(abs, filepath.FromSlash(RequiredFixture))); err != nil {
		return "", &ConfigError{Reason: fmt.Sprintf("samples directory %s does not contain %s", abs, RequiredFixture), Err: err}
	}

	uri, err := resolve.DirURI(abs)
	if err != nil {
		return "", &ConfigError{Reason: "cannot express " + abs + " as a URI", Err: err}
	}
	return uri, nil
}
