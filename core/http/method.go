package http

// Request methods
const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodDelete  = "DELETE"
	MethodConnect = "CONNECT"
	MethodOptions = "OPTIONS"
	MethodTrace   = "TRACE"
	MethodPatch   = "PATCH"
)

var methods = map[string]struct{}{
	MethodGet:     {},
	MethodHead:    {},
	MethodPost:    {},
	MethodPut:     {},
	MethodDelete:  {},
	MethodConnect: {},
	MethodOptions: {},
	MethodTrace:   {},
	MethodPatch:   {},
}

// ValidMethod reports whether m is one of the known verbs. Matching is case-sensitive.
func ValidMethod(m string) bool {
	_, ok := methods[m]
	return ok
}

// methodHasBody reports whether a request with method m is read for a body
func methodHasBody(m string) bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch:
		return true
	}
	return false
}
