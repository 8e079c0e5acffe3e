package prometheus

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/golang/gddo/httputil"
	"github.com/pkg/errors"
)

const (
	contentTypePlainText = "text/plain"
	contentTypeJSON      = "application/json"
)

// generatedResponse carries a handler result to writeResponse.
type generatedResponse struct {
	Err  string      `json:"error"`
	Data interface{} `json:"data"`
}

// writeResponse renders the response as plain text or JSON depending on
// the request's Accept header. Plain text is the default so that curl and
// load balancer probes get readable output.
func writeResponse(w http.ResponseWriter, r *http.Request, response generatedResponse) error {
	offers := []string{contentTypePlainText, contentTypeJSON}
	switch httputil.NegotiateContentType(r, offers, contentTypePlainText) {
	case contentTypePlainText:
		buf, ok := response.Data.(bytes.Buffer)
		if !ok {
			return errors.Errorf("unexpected data: %v", response.Data)
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return errors.Wrap(err, "could not write response body")
		}
	case contentTypeJSON:
		w.Header().Set("Content-Type", contentTypeJSON)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			return err
		}
	}
	return nil
}
