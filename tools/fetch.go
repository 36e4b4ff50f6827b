package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/semtexzv/termineer-sub001/buffer"
	"github.com/semtexzv/termineer-sub001/errors"
)

// fetchBodyLimit caps the response body returned to the model.
const fetchBodyLimit = 1024 * 1024

var fetchClient = &http.Client{Timeout: 60 * time.Second}

// runFetch issues an HTTP request. The arguments are the URL, optionally
// preceded by a method. A non-empty body turns the request into a POST
// unless a method was given.
func (e *Executor) runFetch(ctx context.Context, inv Invocation) (Result, error) {
	fields := strings.Fields(inv.Args)
	method := ""
	target := ""
	switch len(fields) {
	case 1:
		target = fields[0]
	case 2:
		method = strings.ToUpper(fields[0])
		target = fields[1]
	default:
		return Result{}, &InvocationError{Message: "fetch requires a URL, optionally preceded by a method"}
	}

	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Result{}, &InvocationError{Message: "fetch requires an http or https URL"}
	}

	var reqBody io.Reader
	if inv.Body != "" {
		reqBody = strings.NewReader(inv.Body)
		if method == "" {
			method = http.MethodPost
		}
	}
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return Result{}, errors.Wrapf(err, "cannot build request for %s", target)
	}
	resp, err := fetchClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Text: "(interrupted)"}, nil
		}
		return Result{}, &ExecError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit+1))
	if err != nil {
		return Result{}, &ExecError{Message: err.Error()}
	}
	truncated := len(body) > fetchBodyLimit
	if truncated {
		body = body[:fetchBodyLimit]
	}

	if !inv.Silent {
		buffer.Toolf(ctx, "fetch", "%s %s -> %d (%d bytes)", method, u.String(), resp.StatusCode, len(body))
	}

	text := string(body)
	if truncated {
		text += "\n[response truncated]"
	}
	if resp.StatusCode >= 400 {
		text = fmt.Sprintf("HTTP %d\n%s", resp.StatusCode, text)
	}
	return Result{Text: text}, nil
}
