package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go-sim-loop/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// fakeAPI answers pending results until pendingPolls polls have been made.
type fakeAPI struct {
	mu           sync.Mutex
	pendingPolls int
	polls        int
	submitted    map[string]interface{}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /simulation", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&f.submitted); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "submitted", "request_id": "r1"})
	})
	mux.HandleFunc("GET /runs/{id}/result", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.polls++
		if f.polls <= f.pendingPolls {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "result pending", "state": "pending", "request_id": r.PathValue("id")})
			return
		}
		best := 1.26
		json.NewEncoder(w).Encode(model.FamilyResult{
			RootID:        "r1",
			RequestID:     r.PathValue("id"),
			State:         model.StateComplete,
			FamilyPassed:  true,
			BestRequestID: "r1_gen_3",
			BestValue:     &best,
			TotalRuns:     11,
			PassedCount:   2,
			IsVariant:     true,
		})
	})
	return mux
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"h0=1.0", "n=3", " mode = drop ", "e=-0.5e-1", "tag=inf"})
	require.NoError(t, err)
	assert.Equal(t, json.Number("1.0"), params["h0"])
	assert.Equal(t, json.Number("3"), params["n"])
	assert.Equal(t, "drop", params["mode"])
	assert.Equal(t, json.Number("-0.5e-1"), params["e"])
	assert.Equal(t, "inf", params["tag"])

	for _, bad := range []string{"novalue", "=1"} {
		_, err := parseParams([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version", "--json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, version, v["version"])

	out, err = runCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "simloop version "+version)
}

func TestSubmitCmd_Wait(t *testing.T) {
	api := &fakeAPI{pendingPolls: 2}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	out, err := runCmd(t, "submit", "--server", srv.URL, "--json",
		"--model", "ball.json", "-p", "h0=1.0", "-p", "mode=drop",
		"--field", "h", "--target", "1.2",
		"--wait", "--interval", "5ms", "--budget", "5s")
	require.NoError(t, err)

	var res model.FamilyResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, model.StateComplete, res.State)
	assert.True(t, res.FamilyPassed)
	assert.Equal(t, "r1_gen_3", res.BestRequestID)
	assert.Equal(t, 3, api.polls)

	params := api.submitted["parameters"].(map[string]interface{})
	assert.Equal(t, json.Number("1.0"), params["h0"])
	assert.Equal(t, "drop", params["mode"])
	assert.Equal(t, "ball.json", api.submitted["model_reference"])
}

func TestSubmitCmd_WaitTimesOut(t *testing.T) {
	api := &fakeAPI{pendingPolls: 1 << 30}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	out, err := runCmd(t, "submit", "--server", srv.URL, "--json",
		"--model", "ball.json", "--field", "h", "--target", "1",
		"--wait", "--interval", "5ms", "--budget", "30ms")
	require.NoError(t, err)

	var res model.FamilyResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, model.StateTimeout, res.State)
	assert.Equal(t, "r1", res.RequestID)
}

func TestSubmitCmd_RejectsBadInput(t *testing.T) {
	_, err := runCmd(t, "submit", "--server", "http://127.0.0.1:1", "--model", "ball.json", "--target", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "criterion.field_name")
}

func TestResultCmd(t *testing.T) {
	api := &fakeAPI{pendingPolls: 1}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	out, err := runCmd(t, "result", "r1", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "state:    pending")

	out, err = runCmd(t, "result", "r1", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "outcome:  passed (2 of 11 runs passed)")
	assert.Contains(t, out, "r1_gen_3 = 1.26 (generated variant)")
}
