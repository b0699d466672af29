package weatherstage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrUnsupportedProtocol = errors.New("endpoint URL must start with https://")
	ErrCannotConnect       = errors.New("cannot connect to endpoint")
)

// ValidateEndpoint checks the URL scheme and probes it with GET; endpoint has to answer 204
func ValidateEndpoint(ctx context.Context, client *http.Client, endpoint string) error {
	if !strings.HasPrefix(endpoint, "https://") {
		return ErrUnsupportedProtocol
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCannotConnect, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCannotConnect, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: got %s", ErrCannotConnect, resp.Status)
	}
	return nil
}

// FormError translates validation error to message shown to the user
func FormError(err error) string {
	switch {
	case errors.Is(err, ErrCannotConnect):
		return "HTTP-connection to Endpoint failed!"
	case errors.Is(err, ErrUnsupportedProtocol):
		return "URL is malformed and should start with https://"
	default:
		return "unknown"
	}
}
