package inventory

import "golang.org/x/text/cases"

// nameKey folds a user-entered name (product, lot number) for
// case-insensitive comparison. A Caser is stateful, so one is built per call.
func nameKey(s string) string {
	return cases.Fold().String(s)
}

// sameName reports whether two user-entered names denote the same key.
func sameName(a, b string) bool {
	return nameKey(a) == nameKey(b)
}
