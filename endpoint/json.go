package endpoint

import (
	"encoding/json"
	"net/http"
)

// JSONRenderer writes a JSON response.
//
// When Raw is non-nil it is written verbatim, which lets callers that already
// hold an encoded document (such as a JSON-RPC envelope) skip a second
// encoding pass. Otherwise Value is encoded with HTML escaping disabled; the
// encoder appends a trailing newline.
//
// Status defaults to 200. An encoding error is returned after the header has
// been written, so it can only be logged.
type JSONRenderer struct {
	Status int
	Value  any
	Raw    json.RawMessage
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	status := jr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if jr.Raw != nil {
		_, err := w.Write(jr.Raw)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(jr.Value)
}
