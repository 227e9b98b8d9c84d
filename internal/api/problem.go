package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// problemPrefix is the default problem type for M3 errors; the instance path
// is reported relative to it.
const problemPrefix = "/3gpp-m3/v1"

// InvalidParam names one offending request parameter inside a problem
// response.
type InvalidParam struct {
	Param  string `json:"param"`
	Reason string `json:"reason,omitempty"`
}

// Problem is an RFC 7807 problem details body as profiled by TS 26.512 for
// the M3 interface.
type Problem struct {
	Type          string         `json:"type"`
	Title         string         `json:"title,omitempty"`
	Status        int            `json:"status"`
	Detail        string         `json:"detail,omitempty"`
	Instance      string         `json:"instance,omitempty"`
	InvalidParams []InvalidParam `json:"invalidParams,omitempty"`
}

// sendProblem renders an application/problem+json error response for the
// request.
func sendProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string, invalidParams ...InvalidParam) {
	instance := r.URL.Path
	if strings.HasPrefix(instance, problemPrefix) {
		instance = strings.TrimPrefix(instance, problemPrefix)
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Problem{
		Type:          problemPrefix,
		Title:         title,
		Status:        status,
		Detail:        detail,
		Instance:      instance,
		InvalidParams: invalidParams,
	})
}

func send(w http.ResponseWriter, code int, object interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(object)
}

func sendEmpty(w http.ResponseWriter, code int) {
	w.WriteHeader(code)
}
