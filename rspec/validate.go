package rspec

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
)

// ErrValidatorUnavailable means the external schema validator is not
// installed. Tests treat this as a reason to skip, not a failure.
var ErrValidatorUnavailable = errors.New("rspeclint is not available")

// SchemaPair associates an XML namespace with the schema document that
// validates it. Aggregates advertise these alongside their supported
// descriptor versions.
type SchemaPair struct {
	Namespace string
	Schema    string
}

// Validator checks descriptor documents against their schemas by running the
// external rspeclint tool, which is the community's reference validator.
type Validator struct {
	// Path is the rspeclint executable. Empty means find it on $PATH.
	Path string
}

func (v Validator) lookPath() (string, error) {
	path := v.Path
	if path == "" {
		path = "rspeclint"
	}
	return exec.LookPath(path)
}

// Available reports whether the validator tool can be found at all, so a run
// can announce up front that schema scenarios will be skipped.
func (v Validator) Available() bool {
	_, err := v.lookPath()
	return err == nil
}

// Validate writes the document to a temporary file and runs rspeclint over
// it. A non-nil return other than ErrValidatorUnavailable means the document
// failed validation, with the tool's output included.
func (v Validator) Validate(raw []byte, pairs ...SchemaPair) error {
	resolved, err := v.lookPath()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrValidatorUnavailable, err)
	}

	f, err := ioutil.TempFile("", "rspec-*.xml")
	if err != nil {
		return fmt.Errorf("writing descriptor for validation: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("writing descriptor for validation: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing descriptor for validation: %w", err)
	}

	args := make([]string, 0, len(pairs)*2+1)
	for _, p := range pairs {
		args = append(args, p.Namespace, p.Schema)
	}
	args = append(args, f.Name())

	output, err := exec.Command(resolved, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("rspeclint rejected the document: %w\n%s", err, output)
	}
	return nil
}
