package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/finhub/internal/errors"
)

const defaultFirestoreURL = "https://firestore.googleapis.com/v1"

// TokenSource returns a bearer token for document reads. Document security
// rules only let a signed-in user read their own role document, so this is
// normally the signed-in user's ID token.
type TokenSource func(ctx context.Context) (string, error)

// FirestoreStore reads users/{uid} documents through the Firestore REST API.
type FirestoreStore struct {
	baseURL   string
	projectID string
	tokens    TokenSource
	http      *http.Client
}

// NewFirestoreStore creates a store for projectID. An empty baseURL uses the
// public endpoint. tokens may be nil for unauthenticated reads.
func NewFirestoreStore(baseURL, projectID string, tokens TokenSource, httpClient *http.Client) *FirestoreStore {
	if baseURL == "" {
		baseURL = defaultFirestoreURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &FirestoreStore{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		tokens:    tokens,
		http:      httpClient,
	}
}

// firestoreDocument is the subset of the REST document shape we read.
type firestoreDocument struct {
	Name   string `json:"name"`
	Fields map[string]struct {
		StringValue *string `json:"stringValue"`
	} `json:"fields"`
}

// Name implements Store.
func (s *FirestoreStore) Name() string { return "firestore" }

// GetRoleRecord implements Store.
func (s *FirestoreStore) GetRoleRecord(ctx context.Context, userID string) (*Record, error) {
	if userID == "" {
		return nil, errors.New(errors.ErrCodeRoleInvalid, "user ID is required")
	}

	endpoint := fmt.Sprintf("%s/projects/%s/databases/(default)/documents/users/%s",
		s.baseURL, url.PathEscape(s.projectID), url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewRoleLookupError(userID, err)
	}
	if s.tokens != nil {
		token, err := s.tokens(ctx)
		if err != nil {
			return nil, errors.NewRoleLookupError(userID, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, errors.NewStoreUnavailableError(s.Name(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, errors.NewRoleLookupError(userID, fmt.Errorf("firestore returned status %d", resp.StatusCode))
	}

	var doc firestoreDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRoleInvalid, "malformed role document", err)
	}

	rec := &Record{UserID: userID}
	if f, ok := doc.Fields["role"]; ok && f.StringValue != nil {
		rec.Role = *f.StringValue
	}
	return rec, nil
}

// Close implements Store.
func (s *FirestoreStore) Close() error { return nil }
