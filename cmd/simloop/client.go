package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-sim-loop/internal/api/handler"
	"go-sim-loop/internal/model"
)

// errPending is returned by result while no verdict of the family exists.
var errPending = errors.New("result pending")

// apiClient calls the simloop HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *apiClient) submit(ctx context.Context, sub model.SubmitRequest) (handler.SubmitResponse, error) {
	var out handler.SubmitResponse
	body, err := json.Marshal(sub)
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/simulation", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	err = c.do(req, &out)
	return out, err
}

// result fetches the family result of id. A positive wait asks the server to
// hold the request until the family changes.
func (c *apiClient) result(ctx context.Context, id string, wait time.Duration) (model.FamilyResult, error) {
	var out model.FamilyResult
	u := c.base + "/runs/" + url.PathEscape(id) + "/result"
	if wait > 0 {
		u += "?wait=" + url.QueryEscape(wait.String())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return out, err
	}
	err = c.do(req, &out)
	return out, err
}

func (c *apiClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var pending handler.PendingResponse
		if json.Unmarshal(data, &pending) == nil && pending.State == model.StatePending {
			return errPending
		}
		var apiErr handler.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %d: %s", req.Method, req.URL.Path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}

func pendingResult(id string) model.FamilyResult {
	return model.FamilyResult{RequestID: id, State: model.StatePending}
}
