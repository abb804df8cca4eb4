// Package feed contains the HTTP clients for the upstream price
// feeds. Each client fetches one raw payload per symbol; decoding is
// left to the normalizer so fetch and parse failures stay separately
// countable.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/quantarc/oracled/internal/domain"
)

const maxResponseBytes = 1 << 20 // 1 MiB, price payloads are tiny

// doGet performs one GET against a feed endpoint and classifies
// failures so the pipeline can count them by kind.
func doGet(ctx context.Context, client *http.Client, src domain.Source, url, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.FetchError{Source: src, Kind: domain.FetchUnreachable, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Source: src, Kind: classify(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.FetchError{Source: src, Kind: classify(err), Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.FetchError{
			Source: src,
			Kind:   domain.FetchBadStatus,
			Err:    fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	return body, nil
}

func classify(err error) domain.FetchKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FetchTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return domain.FetchTimeout
	}
	return domain.FetchUnreachable
}

func newHTTPClient() *http.Client {
	// Per-fetch deadlines come from the caller's context; the client
	// timeout is only a backstop.
	return &http.Client{Timeout: 30 * time.Second}
}
