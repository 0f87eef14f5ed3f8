package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"televid/internal/pkg/errors"
)

// RESTQueue pops through an Upstash-style REST endpoint:
// GET {base}/rpop/{name} -> {"result": "<payload>"} or {"result": null}.
type RESTQueue struct {
	baseURL   string
	token     string
	queueName string
	hc        *http.Client
}

func NewRESTQueue(baseURL, token, queueName string, hc *http.Client) *RESTQueue {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &RESTQueue{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		queueName: queueName,
		hc:        hc,
	}
}

type popResponse struct {
	Result *string `json:"result"`
	Error  string  `json:"error,omitempty"`
}

func (q *RESTQueue) Pop(ctx context.Context) (string, error) {
	const op = "queue.rest_pop"

	endpoint := fmt.Sprintf("%s/rpop/%s", q.baseURL, url.PathEscape(q.queueName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", errors.Wrap(err, op, "build request")
	}
	if q.token != "" {
		req.Header.Set("Authorization", "Bearer "+q.token)
	}

	res, err := q.hc.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.Timeout(op)
		}
		return "", errors.WrapWithCode(err, errors.CodeUnavailable, op, "queue request failed")
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUnavailable, op, "read queue response")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", errors.Newf(errors.CodeUnavailable, "queue returned %d", res.StatusCode).
			WithField("body", truncate(string(body), 512))
	}

	var out popResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeUnavailable, op, "decode queue response").
			WithField("body", truncate(string(body), 512))
	}
	if out.Error != "" {
		return "", errors.Newf(errors.CodeUnavailable, "queue error: %s", out.Error)
	}
	if out.Result == nil {
		return "", nil
	}
	return *out.Result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
