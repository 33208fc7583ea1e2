package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/asticode/go-astilog"
	"github.com/asticode/go-astivoice/capture"
	"github.com/pkg/errors"
)

// Form fields
const (
	fieldFile       = "file"
	fieldIdentifier = "user_id"
)

// Client sends samples to the service. A submission is a single request: no retry, no streaming.
type Client struct {
	c *http.Client
	o Options
}

// New creates a new client
func New(o Options) *Client {
	o.setDefaults()
	return &Client{
		c: &http.Client{Timeout: o.Timeout},
		o: o,
	}
}

// Addr returns the service base address
func (c *Client) Addr() string { return c.o.Addr }

// Submit sends the sample under identifier to the operation's endpoint.
// Errors are either a *ServiceError or a *TransportError.
func (c *Client) Submit(ctx context.Context, op Operation, identifier string, s capture.Sample) (o Outcome, err error) {
	// Create body
	var body io.Reader
	var contentType string
	if body, contentType, err = newMultipartBody(identifier, s); err != nil {
		err = errors.Wrap(err, "verification: creating multipart body failed")
		return
	}

	// Create request
	u := c.o.Addr + "/" + string(op)
	var req *http.Request
	if req, err = http.NewRequest(http.MethodPost, u, body); err != nil {
		err = errors.Wrapf(err, "verification: creating request to %s failed", u)
		return
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", contentType)

	// Send
	astilog.Debugf("verification: sending %s request for %s with %d bytes to %s", op, identifier, s.Size(), u)
	var code int
	var b []byte
	if code, b, err = c.send(req); err != nil {
		return
	}

	// Decode
	if o, err = decode(code, b); err != nil {
		astilog.Debugf("verification: service returned status %d to %s request", code, op)
		return
	}
	astilog.Debugf("verification: %s request succeeded with status %d", op, code)
	return
}

// send executes the request and reads the body. Failing to do so is a *TransportError.
func (c *Client) send(req *http.Request) (code int, b []byte, err error) {
	// Do
	var resp *http.Response
	if resp, err = c.c.Do(req); err != nil {
		err = &TransportError{Err: errors.Wrapf(err, "sending %s %s failed", req.Method, req.URL)}
		return
	}
	defer resp.Body.Close()

	// Read body
	if b, err = ioutil.ReadAll(resp.Body); err != nil {
		err = &TransportError{Err: errors.Wrapf(err, "reading %s %s response body failed", req.Method, req.URL)}
		return
	}
	code = resp.StatusCode
	return
}

// newMultipartBody builds a form with exactly two parts: the identifier and the sample
func newMultipartBody(identifier string, s capture.Sample) (_ io.Reader, contentType string, err error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	// Write identifier
	if err = w.WriteField(fieldIdentifier, identifier); err != nil {
		err = errors.Wrapf(err, "verification: writing %s field failed", fieldIdentifier)
		return
	}

	// Create file part with its declared type
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fieldFile, escapeQuotes(s.FileName())))
	h.Set("Content-Type", s.MIMEType())
	var p io.Writer
	if p, err = w.CreatePart(h); err != nil {
		err = errors.Wrapf(err, "verification: creating %s part failed", fieldFile)
		return
	}

	// Write sample
	if _, err = io.Copy(p, s.Reader()); err != nil {
		err = errors.Wrapf(err, "verification: writing %s part failed", fieldFile)
		return
	}

	// Close
	if err = w.Close(); err != nil {
		err = errors.Wrap(err, "verification: closing multipart writer failed")
		return
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

type successBody struct {
	Message   *string  `json:"message"`
	Score     *float64 `json:"score"`
	Status    string   `json:"status"`
	Threshold *float64 `json:"threshold"`
	UserID    string   `json:"user_id"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// decode parses the body as JSON whatever the status code
func decode(code int, b []byte) (o Outcome, err error) {
	// Error
	if code < http.StatusOK || code >= http.StatusMultipleChoices {
		var e errorBody
		se := &ServiceError{StatusCode: code}
		if errUnmarshal := json.Unmarshal(b, &e); errUnmarshal == nil {
			se.Detail = parseDetail(e.Detail)
		}
		err = se
		return
	}

	// Success
	var s successBody
	if errUnmarshal := json.Unmarshal(b, &s); errUnmarshal != nil {
		err = &ServiceError{StatusCode: code}
		return
	}
	o = Outcome{
		Message:   MessageSuccess,
		Score:     s.Score,
		Status:    s.Status,
		Threshold: s.Threshold,
		UserID:    s.UserID,
	}
	if s.Message != nil && *s.Message != "" {
		o.Message = *s.Message
	}
	return
}

// parseDetail handles both string details and validation error lists
func parseDetail(raw json.RawMessage) string {
	// No detail
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	// String
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	// Validation errors
	var vs []struct {
		Loc []interface{} `json:"loc"`
		Msg string        `json:"msg"`
	}
	if err := json.Unmarshal(raw, &vs); err == nil && len(vs) > 0 {
		var ms []string
		for _, v := range vs {
			m := v.Msg
			if len(v.Loc) > 0 {
				m = fmt.Sprintf("%v: %s", v.Loc[len(v.Loc)-1], v.Msg)
			}
			ms = append(ms, m)
		}
		return strings.Join(ms, ", ")
	}
	return string(raw)
}

// Health checks whether the service reports itself as ok
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	// Create request
	u := c.o.Addr + "/health"
	var req *http.Request
	if req, err = http.NewRequest(http.MethodGet, u, nil); err != nil {
		err = errors.Wrapf(err, "verification: creating request to %s failed", u)
		return
	}
	req = req.WithContext(ctx)

	// Send
	var code int
	var b []byte
	if code, b, err = c.send(req); err != nil {
		return
	}

	// Decode
	var h struct {
		Status string `json:"status"`
	}
	if code != http.StatusOK || json.Unmarshal(b, &h) != nil {
		err = &ServiceError{StatusCode: code}
		return
	}
	ok = h.Status == "ok"
	return
}
