package routes

import (
	"net/http"
	"strings"
)

// ActionPrefix is the path under which form actions are served
const ActionPrefix = "/_actions/"

// Authentication actions reachable without a session
const (
	ActionSignIn   = "auth.signin"
	ActionRegister = "auth.register"
	ActionSignOut  = "auth.signout"
)

var authActions = map[string]struct{}{
	ActionSignIn:   {},
	ActionRegister: {},
	ActionSignOut:  {},
}

// ActionName returns the action a request invokes, if it invokes one
func ActionName(method, requestPath string) (string, bool) {
	if method != http.MethodPost {
		return "", false
	}
	name, ok := strings.CutPrefix(requestPath, ActionPrefix)
	if !ok {
		return "", false
	}
	name = strings.Trim(name, "/")
	if name == "" {
		return "", false
	}
	return name, true
}

// IsAuthAction reports whether an action belongs to the sign-in flow
func IsAuthAction(name string) bool {
	_, ok := authActions[name]
	return ok
}
