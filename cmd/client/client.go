package main

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// response mirrors the server's APIResponse with the payload left undecoded.
type response struct {
	StatusCode int                `json:"-"`
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	Data       stdjson.RawMessage `json:"data"`
}

// apiClient talks to the pride-store HTTP API.
type apiClient struct {
	baseURL  string
	http     *http.Client
	user     string
	password string
}

func newAPIClient(addr string, timeout time.Duration) *apiClient {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &apiClient{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (a *apiClient) setCredentials(user, password string) {
	a.user, a.password = user, password
}

func (a *apiClient) do(method, path string, params url.Values, body []byte) (*response, error) {
	target := a.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.user != "" {
		req.SetBasicAuth(a.user, a.password)
	}
	res, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", a.baseURL, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	resp := &response{StatusCode: res.StatusCode}
	if err := json.Unmarshal(raw, resp); err != nil {
		// Plain-text errors come from the router itself (404, 405).
		resp.Message = strings.TrimSpace(string(raw))
	}
	return resp, nil
}

func (a *apiClient) login(user, password string) error {
	prevUser, prevPassword := a.user, a.password
	a.setCredentials(user, password)
	resp, err := a.do(http.MethodGet, "/auth", nil, nil)
	if err == nil && resp.StatusCode != http.StatusOK {
		err = errors.New(resp.Message)
	}
	if err != nil {
		a.setCredentials(prevUser, prevPassword)
		return err
	}
	return nil
}

func (a *apiClient) entities() ([]string, error) {
	resp, err := a.do(http.MethodGet, "/api", nil, nil)
	if err != nil {
		return nil, err
	}
	var list []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, e := range list {
		names = append(names, e.Name)
	}
	return names, nil
}
