// Package jsexec syntax-checks the JavaScript snippets the probe injects
// into remote pages. A typo in an inline script should fail at startup, not
// as an opaque evaluate error from the browser.
package jsexec

import (
	"fmt"

	"github.com/dop251/goja"
)

// Check compiles the script in strict mode and returns the parse error, if
// any. The script is never executed.
func Check(name, src string) error {
	if _, err := goja.Compile(name, src, true); err != nil {
		return fmt.Errorf("script %s does not parse: %w", name, err)
	}
	return nil
}

// CheckAll validates a set of named scripts and reports the first failure.
func CheckAll(scripts map[string]string) error {
	for name, src := range scripts {
		if err := Check(name, src); err != nil {
			return err
		}
	}
	return nil
}
