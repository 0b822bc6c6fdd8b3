package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/roster"
)

// TokenSource supplies the bearer token sent with every request.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// StatusError is a non-2xx reply from the attendance service.
type StatusError struct {
	Code    int
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("attendance service error %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("attendance service error %s", e.Status)
}

// Client calls the remote attendance and roster services.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   TokenSource
}

// New creates a client with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// WithToken returns a copy of c that authenticates with ts. The HTTP client
// is shared.
func (c *Client) WithToken(ts TokenSource) *Client {
	cp := *c
	cp.Token = ts
	return &cp
}

// FetchRegistrations lists the registrations of a class.
func (c *Client) FetchRegistrations(ctx context.Context, classID int64) ([]roster.Registration, error) {
	q := url.Values{}
	q.Set("studentClassId", strconv.FormatInt(classID, 10))

	var out []roster.Registration
	if err := c.getJSON(ctx, "/registrations", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchAttendance returns a student's attendance records in a class between
// start and end inclusive, read from the student report.
func (c *Client) FetchAttendance(ctx context.Context, studentID, classID int64, start, end attendance.Date) ([]attendance.Record, error) {
	q := url.Values{}
	q.Set("studentClassId", strconv.FormatInt(classID, 10))
	q.Set("startDate", start.String())
	q.Set("endDate", end.String())

	var out struct {
		Records []attendance.Record `json:"records"`
	}
	path := fmt.Sprintf("/attendance/students/%d/report", studentID)
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// CommitAttendance writes records in one bulk request.
func (c *Client) CommitAttendance(ctx context.Context, records []attendance.Record) error {
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode attendance: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/attendance/bulk", nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchStudentClasses returns the raw class list, optionally bounded by
// start and end dates in YYYY-MM-DD form.
func (c *Client) FetchStudentClasses(ctx context.Context, startDate, endDate string) (json.RawMessage, error) {
	q := url.Values{}
	if startDate != "" {
		q.Set("startDate", startDate)
	}
	if endDate != "" {
		q.Set("endDate", endDate)
	}
	return c.getRaw(ctx, "/student-classes", q)
}

// FetchStudentClass returns one class as served.
func (c *Client) FetchStudentClass(ctx context.Context, classID int64) (json.RawMessage, error) {
	return c.getRaw(ctx, fmt.Sprintf("/student-classes/%d", classID), nil)
}

// FetchClassReport returns the server-computed class attendance report.
func (c *Client) FetchClassReport(ctx context.Context, classID int64, startDate, endDate string) (json.RawMessage, error) {
	return c.getRaw(ctx, fmt.Sprintf("/attendance/classes/%d/report", classID), dateRange(startDate, endDate))
}

// FetchStudentReport returns the server-computed report for one student in a class.
func (c *Client) FetchStudentReport(ctx context.Context, studentID, classID int64, startDate, endDate string) (json.RawMessage, error) {
	q := dateRange(startDate, endDate)
	q.Set("studentClassId", strconv.FormatInt(classID, 10))
	return c.getRaw(ctx, fmt.Sprintf("/attendance/students/%d/report", studentID), q)
}

func dateRange(startDate, endDate string) url.Values {
	q := url.Values{}
	if startDate != "" {
		q.Set("startDate", startDate)
	}
	if endDate != "" {
		q.Set("endDate", endDate)
	}
	return q
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("attendance service returned invalid JSON")
	}
	return json.RawMessage(body), nil
}

// do sends the request and returns the response only for 2xx replies; the
// caller closes the body.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Response, error) {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != nil {
		if tok := c.Token.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attendance service request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		se := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(bodyBytes, &payload) == nil && payload.Error != "" {
			se.Message = payload.Error
		} else {
			se.Message = strings.TrimSpace(string(bodyBytes))
		}
		return nil, se
	}
	return resp, nil
}

// Health checks that the attendance service answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("attendance service unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("attendance service unhealthy: %s", resp.Status)
	}
	return nil
}
