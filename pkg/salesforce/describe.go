package salesforce

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ValidateFields checks that every name in fields exists on sObject and is
// updateable. The error lists all offending fields.
func ValidateFields(ctx context.Context, c Client, sObject string, fields []string) error {
	desc, err := c.DescribeSObject(ctx, sObject)
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: validate %s fields", sObject))
	}

	known := make(map[string]SObjectField, len(desc.Fields))
	for _, f := range desc.Fields {
		known[strings.ToLower(f.Name)] = f
	}

	var missing, readOnly []string
	for _, name := range fields {
		f, ok := known[strings.ToLower(name)]
		switch {
		case !ok:
			missing = append(missing, name)
		case !f.Updateable:
			readOnly = append(readOnly, name)
		}
	}
	if len(missing) == 0 && len(readOnly) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(readOnly)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "unknown: "+strings.Join(missing, ", "))
	}
	if len(readOnly) > 0 {
		parts = append(parts, "not updateable: "+strings.Join(readOnly, ", "))
	}
	return eris.New(fmt.Sprintf("sf: %s fields %s", sObject, strings.Join(parts, "; ")))
}
