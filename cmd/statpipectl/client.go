package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type pipeClient struct {
	baseURL string
	http    *http.Client
}

func newClient() *pipeClient {
	return &pipeClient{
		baseURL: serverURL,
		// The generous default covers a synchronous run, which holds
		// the request open while the server downloads the series and
		// builds the workbook.
		http: &http.Client{
			Timeout: httpTimeout,
		},
	}
}

// getJSON performs a GET request and decodes the response. Any non-200
// status is an error carrying the response body.
func (c *pipeClient) getJSON(path string, v any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

// getStatus performs a GET request and decodes the JSON body for any
// response status. The server sends structured bodies with its 4xx/5xx
// answers, so callers can render those instead of a bare status code.
func (c *pipeClient) getStatus(path string) (map[string]any, int, error) {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode error: %w", err)
	}
	return result, resp.StatusCode, nil
}

// postRaw performs a POST request and decodes the JSON body for any
// response status, like getStatus.
func (c *pipeClient) postRaw(path string, body any) (map[string]any, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", reader)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode error: %w", err)
	}
	return result, resp.StatusCode, nil
}

// putJSON performs a PUT request with a JSON body and decodes the response.
func (c *pipeClient) putJSON(path string, body any, v any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	req, err := http.NewRequest(http.MethodPut, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}
