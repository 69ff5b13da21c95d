// Package transport builds ingestion requests and sends them over HTTP.
package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"clickstream/internal/config"
)

// Request timeouts.
const (
	SingleTimeout = 10 * time.Second
	BatchTimeout  = 15 * time.Second
)

// Query parameter names of the ingestion contract.
const (
	ParamPlatform   = "platform"
	ParamAppID      = "appId"
	ParamSequenceID = "event_bundle_sequence_id"
	ParamHashCode   = "hashCode"
)

const contentType = "application/json; charset=utf-8"

// Target identifies where and as whom requests are sent.
type Target struct {
	Endpoint   string
	AppID      string
	Platform   string
	AuthCookie string
}

// Request is a fully built ingestion request.
type Request struct {
	Method     string
	URL        string
	Body       string
	Header     http.Header
	Timeout    time.Duration
	SequenceID int64
}

// HashCode returns the first 8 hex characters of the SHA-256 of body.
func HashCode(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])[:8]
}

// NewRequest builds the POST for body with the contract query parameters.
func NewRequest(target Target, body string, sequenceID int64, timeout time.Duration) (*Request, error) {
	endpoint, err := url.Parse(target.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", target.Endpoint, err)
	}

	query := endpoint.Query()
	query.Set(ParamPlatform, target.Platform)
	query.Set(ParamAppID, target.AppID)
	query.Set(ParamSequenceID, strconv.FormatInt(sequenceID, 10))
	query.Set(ParamHashCode, HashCode(body))
	endpoint.RawQuery = query.Encode()

	header := http.Header{}
	header.Set("Content-Type", contentType)
	if target.AuthCookie != "" {
		header.Set("Cookie", target.AuthCookie)
	}

	return &Request{
		Method:     http.MethodPost,
		URL:        endpoint.String(),
		Body:       body,
		Header:     header,
		Timeout:    timeout,
		SequenceID: sequenceID,
	}, nil
}

// TargetFromConfig returns the delivery target of cfg.
func TargetFromConfig(cfg *config.Config) Target {
	return Target{
		Endpoint:   cfg.Endpoint,
		AppID:      cfg.AppID,
		Platform:   cfg.Platform,
		AuthCookie: cfg.AuthCookie,
	}
}
