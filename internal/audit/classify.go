package audit

import (
	"net/http"
	"strings"
)

// pathMarkers take priority over the HTTP verb, in this order.
var pathMarkers = []struct {
	marker string
	action Action
}{
	{"login", ActionLogin},
	{"logout", ActionLogout},
	{"export", ActionExport},
	{"print", ActionPrint},
}

// ClassifyAction maps method and path to an Action. Path markers (login, logout,
// export, print) win; otherwise the verb decides and unknown verbs read.
func ClassifyAction(method, path string) Action {
	lower := strings.ToLower(path)
	for _, segment := range strings.Split(lower, "/") {
		for _, m := range pathMarkers {
			if segment == m.marker || strings.HasPrefix(segment, m.marker+".") {
				return m.action
			}
		}
	}

	switch strings.ToUpper(method) {
	case http.MethodPost:
		return ActionCreate
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionRead
	}
}

// ResourceFromPath derives resource type and id from /api/<type>/<id>/... paths.
// Paths outside /api yield the first segment as the type and no id.
func ResourceFromPath(path string) (resourceType, resourceID string) {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segments) > 0 && segments[0] == "api" {
		segments = segments[1:]
	}
	if len(segments) > 0 && isVersion(segments[0]) {
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return "", ""
	}
	resourceType = segments[0]
	if len(segments) > 1 {
		resourceID = segments[1]
	}
	return resourceType, resourceID
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
