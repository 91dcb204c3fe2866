package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rafio1020/project-aeras/internal/geo"
	"github.com/rafio1020/project-aeras/internal/logger"
)

const defaultRequestTimeout = 5 * time.Second

// Client is the HTTP implementation of the Correlator contract. All calls
// are synchronous with a bounded timeout; a failed call never crashes the
// caller's loop.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logger.Logger
}

var _ Correlator = (*Client)(nil)

// NewClient builds a client for the backend at baseURL (e.g.
// "http://10.172.129.95:3000/api"). A zero timeout uses the default 5s.
func NewClient(baseURL string, timeout time.Duration, l *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  l.WithTag("backend"),
	}
}

func (c *Client) Register(nodeID, displayName string, pos geo.Position) error {
	req := RegisterRequest{
		NodeID:      nodeID,
		DisplayName: displayName,
		Lat:         pos.Lat,
		Lng:         pos.Lng,
	}
	if err := c.post("/rickshaw/register", req, nil); err != nil {
		return err
	}
	c.logger.Infof("Registered node %s with backend", nodeID)
	return nil
}

func (c *Client) ReportPosition(nodeID string, pos geo.Position) error {
	report := PositionReport{
		NodeID:  nodeID,
		Lat:     pos.Lat,
		Lng:     pos.Lng,
		Geohash: geo.Hash(pos),
	}
	return c.post("/rickshaw/location", report, nil)
}

func (c *Client) SubmitRequest(pickup, destination, requesterID string) (string, error) {
	req := RideRequest{
		Pickup:      pickup,
		Destination: destination,
		RequesterID: requesterID,
	}
	var resp rideRequestResponse
	if err := c.post("/ride/request", req, &resp); err != nil {
		return "", err
	}
	if resp.RideID == nil || *resp.RideID == "" {
		return "", fmt.Errorf("%w: request response missing rideID", ErrProtocol)
	}
	return *resp.RideID, nil
}

func (c *Client) PollPendingRequests(nodeID string) ([]PendingRide, error) {
	var resp pendingRidesResponse
	q := url.Values{"rickshawID": {nodeID}}
	if err := c.get("/ride/pending", q, &resp); err != nil {
		return nil, err
	}
	return resp.Rides, nil
}

func (c *Client) AcceptRide(rideID, nodeID string) error {
	var resp acceptResponse
	if err := c.post("/ride/accept", acceptRequest{RideID: rideID, NodeID: nodeID}, &resp); err != nil {
		return err
	}
	if resp.Accepted == nil {
		return fmt.Errorf("%w: accept response missing accepted flag", ErrProtocol)
	}
	if !*resp.Accepted {
		return ErrRideTaken
	}
	return nil
}

func (c *Client) ConfirmPickup(rideID string) error {
	return c.post("/ride/pickup", pickupRequest{RideID: rideID}, nil)
}

func (c *Client) CompleteRide(rideID string, drop geo.Position) (CompletionResult, error) {
	req := completeRequest{RideID: rideID, DropLat: drop.Lat, DropLng: drop.Lng}
	var result CompletionResult
	if err := c.post("/ride/complete", req, &result); err != nil {
		return CompletionResult{}, err
	}
	if result.Status == "" {
		return CompletionResult{}, fmt.Errorf("%w: completion response missing status", ErrProtocol)
	}
	return result, nil
}

func (c *Client) PollStatus(blockID string) (string, error) {
	var resp statusResponse
	q := url.Values{"blockID": {blockID}}
	if err := c.get("/ride/status", q, &resp); err != nil {
		return "", err
	}
	if resp.Phase == nil || *resp.Phase == "" {
		return "", fmt.Errorf("%w: status response missing status", ErrProtocol)
	}
	return *resp.Phase, nil
}

func (c *Client) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrProtocol, path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build %s: %v", ErrProtocol, path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: build %s: %v", ErrProtocol, path, err)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrConnectivity, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s returned %d", ErrProtocol, req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProtocol, req.URL.Path, err)
	}
	return nil
}
