package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Marvins20/ai-ethics-multiagents/internal/models"
	"github.com/Marvins20/ai-ethics-multiagents/internal/server"
)

var serverURL string

var httpClient = &http.Client{Timeout: 2 * time.Minute}

func doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusViaHTTP(ctx context.Context, base string) (*server.Status, error) {
	var st server.Status
	if err := doJSON(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+"/api/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func resolveViaHTTP(ctx context.Context, base, list string) ([]models.Report, error) {
	var out struct {
		Reports []models.Report `json:"reports"`
	}
	body := map[string]string{"references": list}
	if err := doJSON(ctx, http.MethodPost, strings.TrimSuffix(base, "/")+"/api/v1/reports/resolve", body, &out); err != nil {
		return nil, err
	}
	return out.Reports, nil
}
