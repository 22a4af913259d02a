package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"freightline/internal/reliability"
)

// ErrUnavailable covers every way the ledger can fail to confirm stock:
// out of stock, timeout, transport failure, or a non-2xx answer. Order
// intake treats them all the same way.
var ErrUnavailable = errors.New("inventory unavailable")

// Checker is the intake-side view of the inventory ledger.
type Checker interface {
	Check(ctx context.Context, items []ItemRequest) error
}

// LocalChecker calls the ledger service in process. Used when everything
// runs in one binary.
type LocalChecker struct {
	service *Service
}

// NewLocalChecker constructs a LocalChecker.
func NewLocalChecker(service *Service) *LocalChecker {
	return &LocalChecker{service: service}
}

func (c *LocalChecker) Check(ctx context.Context, items []ItemRequest) error {
	resp, err := c.service.CheckAndReserve(ctx, CheckRequest{Items: items, Reserve: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !resp.Available {
		return fmt.Errorf("%w: %v", ErrUnavailable, resp.UnavailableItems)
	}
	return nil
}

const defaultCheckTimeout = 10 * time.Second

// HTTPChecker calls a remote inventory ledger over HTTP with a bounded
// request timeout and a circuit breaker. The inventory round trip is the
// only synchronous call inside the saga's critical path, so an unreachable
// ledger must fail fast rather than stall intake workers.
type HTTPChecker struct {
	baseURL string
	client  *http.Client
	breaker *reliability.CircuitBreaker
	timeout time.Duration
}

// NewHTTPChecker constructs an HTTPChecker against baseURL
// (e.g. "http://inventory:8081"). A nil breaker disables breaking.
func NewHTTPChecker(baseURL string, timeout time.Duration, breaker *reliability.CircuitBreaker) *HTTPChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &HTTPChecker{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		timeout: timeout,
	}
}

func (c *HTTPChecker) Check(ctx context.Context, items []ItemRequest) error {
	call := func() error {
		return c.check(ctx, items)
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil && !errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *HTTPChecker) check(ctx context.Context, items []ItemRequest) error {
	body, err := json.Marshal(CheckRequest{Items: items, Reserve: true})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/inventory/check", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var check CheckResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&check); decodeErr == nil && len(check.UnavailableItems) > 0 {
			return fmt.Errorf("%w: %v", ErrUnavailable, check.UnavailableItems)
		}
		return fmt.Errorf("%w: ledger returned %d", ErrUnavailable, resp.StatusCode)
	}

	var check CheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&check); err != nil {
		return err
	}
	if !check.Available {
		return fmt.Errorf("%w: %v", ErrUnavailable, check.UnavailableItems)
	}
	return nil
}
