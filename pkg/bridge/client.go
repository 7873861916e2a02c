// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package bridge is the typed client for the group-management HTTP API exposed
by the messaging bridge.

# Problem Statement

The bridge speaks plain HTTP and signals failures three different ways:
transport errors, status codes, and per-target error codes inside a 200
response. The rest of the pipeline must never sniff error strings; retry and
terminal decisions switch on a closed ErrorKind classified once, here, at
the API boundary.

# Endpoints

	GET  /members?group={key}&page={n}&page_size={m}
	POST /group/{key}/participants/remove   {"participants": [...]}
	POST /group/{key}/participants/add      {"participants": [...]}

Member listing is paged; a page shorter than the requested page size is the
last one. Participant mutations return per-target results: the call can
succeed overall while individual targets fail, and callers must inspect
both.

# Error Classification

  - connection refused / timeout          → KindUnreachable
  - HTTP 400 (bad group key)              → KindInvalidGroup
  - HTTP 401/403                          → KindNotAuthorized
  - HTTP 404                              → KindNotFound
  - HTTP 5xx and everything else          → KindTransient

The bridge reports "not a member" of the group as HTTP 403, so those
refusals classify as KindNotAuthorized and are terminal like any other
privilege failure.

KindUnreachable and KindTransient are the only retryable kinds.
*/
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// -----------------------------------------------------------------------------
// Error Types
// -----------------------------------------------------------------------------

// ErrorKind categorizes bridge failures for programmatic handling.
type ErrorKind int

const (
	// KindTransient is a failure worth retrying (5xx, malformed response).
	KindTransient ErrorKind = iota

	// KindUnreachable means the bridge itself could not be reached.
	KindUnreachable

	// KindNotAuthorized means the session lacks privilege for the group
	// operation, including not being a member of the group at all. Never
	// retried.
	KindNotAuthorized

	// KindNotFound means the group or target no longer exists. Never
	// retried.
	KindNotFound

	// KindInvalidGroup means the group key was rejected as malformed.
	KindInvalidGroup
)

// String returns the kind name used in ledger records and logs.
func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable-backend"
	case KindNotAuthorized:
		return "not-authorized"
	case KindNotFound:
		return "item-not-found"
	case KindInvalidGroup:
		return "invalid-group-key"
	default:
		return "transient"
	}
}

// Retryable reports whether an operation failing with this kind may be
// attempted again.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindUnreachable
}

// Error is a classified bridge failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int // zero when the request never got a response
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("bridge: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("bridge: %s: %s", e.Kind, e.Message)
}

// Classify extracts the ErrorKind from any error returned by this package.
// Unknown errors classify as transient so they stay retryable rather than
// silently terminal.
func Classify(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindTransient
}

// -----------------------------------------------------------------------------
// Wire Types
// -----------------------------------------------------------------------------

// Member is one roster entry as reported by the member-listing endpoint.
type Member struct {
	Identifier string `json:"identifier"`
	Role       string `json:"role"`
}

type membersResponse struct {
	Members []Member `json:"members"`
}

// TargetResult is the bridge's per-target outcome for a participant
// mutation. Success of the call does not imply success of every target.
type TargetResult struct {
	Identifier string `json:"identifier"`
	Success    bool   `json:"success"`
	ErrorCode  string `json:"error_code,omitempty"`
}

type mutateRequest struct {
	Participants []string `json:"participants"`
}

type mutateResponse struct {
	PerTarget []TargetResult `json:"per_target"`
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// DefaultPageSize is the member-listing page size requested per call.
const DefaultPageSize = 200

// Client talks to one bridge instance. Safe for sequential reuse; the
// pipeline is single-threaded by design.
type Client struct {
	baseURL  string
	http     *http.Client
	pageSize int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client (tests use
// httptest servers through this).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithPageSize overrides the member-listing page size.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// New creates a bridge client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListMembers pages through the member-listing endpoint until a short page
// signals the end. A group with zero members returns an empty slice and nil
// error; failures always return a classified *Error.
func (c *Client) ListMembers(ctx context.Context, group string) ([]Member, error) {
	if group == "" {
		return nil, &Error{Kind: KindInvalidGroup, Message: "empty group key"}
	}

	var all []Member
	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("group", group)
		q.Set("page", strconv.Itoa(page))
		q.Set("page_size", strconv.Itoa(c.pageSize))

		var resp membersResponse
		if err := c.get(ctx, "/members?"+q.Encode(), &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Members...)
		if len(resp.Members) < c.pageSize {
			break
		}
	}
	return all, nil
}

// UpdateParticipants issues one participant mutation for the given action
// path segment ("remove" or "add") and returns the per-target results.
func (c *Client) UpdateParticipants(ctx context.Context, group, action string, participants []string) ([]TargetResult, error) {
	if group == "" {
		return nil, &Error{Kind: KindInvalidGroup, Message: "empty group key"}
	}
	if len(participants) == 0 {
		return nil, &Error{Kind: KindInvalidGroup, Message: "empty participant list"}
	}

	body, err := json.Marshal(mutateRequest{Participants: participants})
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: fmt.Sprintf("encode request: %v", err)}
	}

	path := fmt.Sprintf("/group/%s/participants/%s", url.PathEscape(group), action)
	var resp mutateResponse
	if err := c.post(ctx, path, body, &resp); err != nil {
		return nil, err
	}
	return resp.PerTarget, nil
}

// -----------------------------------------------------------------------------
// HTTP plumbing
// -----------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &Error{Kind: KindTransient, Message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindTransient, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		// Context cancellation propagates untouched so the run deadline
		// is distinguishable from a dead bridge.
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return &Error{Kind: KindUnreachable, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if kind, ok := classifyStatus(resp.StatusCode); ok {
		return &Error{Kind: kind, StatusCode: resp.StatusCode, Message: truncate(string(data), 300)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// classifyStatus maps non-2xx statuses to error kinds. The second return is
// false for success statuses.
func classifyStatus(status int) (ErrorKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return 0, false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindNotAuthorized, true
	case status == http.StatusNotFound:
		return KindNotFound, true
	case status == http.StatusBadRequest:
		return KindInvalidGroup, true
	default:
		return KindTransient, true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
