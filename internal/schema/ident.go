package schema

import (
	"fmt"
	"regexp"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CheckIdent rejects names that cannot be safely interpolated into SQL or
// Cypher text (labels, relationship types, table and column names). Every
// identifier that ends up inside generated statement text must pass this.
func CheckIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must match [A-Za-z_][A-Za-z0-9_]*", name)
	}
	return nil
}
