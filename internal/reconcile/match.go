package reconcile

import "strings"

const headerInstructor = "Instructor"

// SameInstructor reports whether two free-text instructor names likely refer
// to the same person. Names are compared lowercased and trimmed and match when
// they are equal, when one contains the other, when they agree over the
// shorter name's length (at least three characters) or when their first words
// are equal. The literal "Instructor" only matches itself.
func SameInstructor(a, b string) bool {
	ta, tb := strings.TrimSpace(a), strings.TrimSpace(b)
	if ta == "" || tb == "" {
		return false
	}
	if ta == headerInstructor || tb == headerInstructor {
		return ta == headerInstructor && tb == headerInstructor
	}

	na, nb := strings.ToLower(ta), strings.ToLower(tb)
	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	short, long := na, nb
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) >= 3 && strings.HasPrefix(long, short) {
		return true
	}

	fa, fb := strings.Fields(na), strings.Fields(nb)
	return len(fa) > 0 && len(fb) > 0 && fa[0] == fb[0]
}
