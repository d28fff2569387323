package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nik0lai/evidence-priming/internal/staircase"
)

// #region client-struct
// Client calls a remote staircase service. Status codes are mapped back onto
// staircase.ErrConfiguration, ErrNotConverged, ErrInsufficientReversals and
// ErrSessionNotFound.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// Dial connects to a staircase server.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn wraps an existing connection. Close is then a no-op.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close shuts down a connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region calls
// Create starts a staircase and returns its session id.
func (c *Client) Create(ctx context.Context, cfg staircase.Config) (CreateResponse, error) {
	var resp CreateResponse
	err := c.invoke(ctx, "Create", CreateRequest{Config: cfg}, &resp)
	return resp, err
}

// Record sends one scored trial.
func (c *Client) Record(ctx context.Context, sessionID string, isCorrect, stimulusPresent bool) (staircase.TrialResult, error) {
	var resp RecordResponse
	err := c.invoke(ctx, "Record", RecordRequest{SessionID: sessionID, IsCorrect: isCorrect, StimulusPresent: stimulusPresent}, &resp)
	return resp.Result, err
}

// Current fetches the live state.
func (c *Client) Current(ctx context.Context, sessionID string) (CurrentResponse, error) {
	var resp CurrentResponse
	err := c.invoke(ctx, "Current", SessionRequest{SessionID: sessionID}, &resp)
	return resp, err
}

// Threshold fetches the threshold of a converged staircase.
func (c *Client) Threshold(ctx context.Context, sessionID string) (float64, error) {
	var resp ThresholdResponse
	if err := c.invoke(ctx, "Threshold", SessionRequest{SessionID: sessionID}, &resp); err != nil {
		return 0, err
	}
	return resp.Threshold, nil
}

// CloseSession drops a session from the server, finishing it in the store if
// it was not finished yet.
func (c *Client) CloseSession(ctx context.Context, sessionID string) (CloseResponse, error) {
	var resp CloseResponse
	err := c.invoke(ctx, "Close", SessionRequest{SessionID: sessionID}, &resp)
	return resp, err
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return fmt.Errorf("%s rpc: %w", method, fromStatus(err))
	}
	return fromStruct(out, resp)
}

// #endregion calls
