// Package firestore implements the remote replica gateway against Cloud
// Firestore's REST API. The whole ledger lives in one document per user:
// a snapshot string field carrying the serialized snapshot plus a schema
// version integer. The server-assigned update time is surfaced only as
// metadata, never used for conflict arbitration.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"saldo/internal/core"
	"saldo/internal/gateway"

	fs "google.golang.org/api/firestore/v1"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
)

const (
	fieldSnapshot      = "snapshot"
	fieldSchemaVersion = "schemaVersion"
)

type Config struct {
	ProjectID  string
	DatabaseID string // default "(default)"
	Collection string // default "ledgers"
}

type Client struct {
	svc        *fs.Service
	projectID  string
	databaseID string
	collection string
}

var (
	_ gateway.SnapshotFetcher = (*Client)(nil)
	_ gateway.SnapshotWriter  = (*Client)(nil)
)

// NewClient creates a Firestore-backed gateway. Credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or Application
// Default Credentials, in that order.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("missing Firestore project id")
	}
	if cfg.DatabaseID == "" {
		cfg.DatabaseID = "(default)"
	}
	if cfg.Collection == "" {
		cfg.Collection = "ledgers"
	}

	svc, err := newFirestoreService(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore service: %w", err)
	}

	return &Client{
		svc:        svc,
		projectID:  cfg.ProjectID,
		databaseID: cfg.DatabaseID,
		collection: cfg.Collection,
	}, nil
}

func newFirestoreService(ctx context.Context) (*fs.Service, error) {
	opts := []goption.ClientOption{goption.WithScopes(fs.DatastoreScope)}

	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	switch {
	case serviceAccountJSON != "":
		opts = append(opts, goption.WithCredentialsJSON([]byte(serviceAccountJSON)))
	case serviceAccountFile != "":
		opts = append(opts, goption.WithCredentialsFile(serviceAccountFile))
	}
	// Otherwise Application Default Credentials apply.

	svc, err := fs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore service: %w", err)
	}
	return svc, nil
}

func (c *Client) documentName(userID string) string {
	return fmt.Sprintf("projects/%s/databases/%s/documents/%s/%s",
		c.projectID, c.databaseID, c.collection, userID)
}

// Fetch reads the user's ledger document. An absent document and one whose
// payload no longer decodes are both reported as nil: the caller treats the
// remote as having no usable data either way.
func (c *Client) Fetch(ctx context.Context, userID string) (*core.Snapshot, *gateway.RemoteMeta, error) {
	doc, err := c.svc.Projects.Databases.Documents.Get(c.documentName(userID)).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, classify(err)
	}

	snap, ok := decodeDocument(ctx, userID, doc)
	if !ok {
		return nil, nil, nil
	}

	meta := &gateway.RemoteMeta{}
	if t, err := time.Parse(time.RFC3339Nano, doc.UpdateTime); err == nil {
		meta.UpdatedAt = t
	}
	return snap, meta, nil
}

// Write replaces the user's ledger document with the given snapshot. Patch
// without a precondition upserts, so first push and overwrite share a path.
func (c *Client) Write(ctx context.Context, userID string, snap core.Snapshot) error {
	data, err := core.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	doc := &fs.Document{
		Fields: map[string]fs.Value{
			fieldSnapshot:      {StringValue: string(data)},
			fieldSchemaVersion: {IntegerValue: int64(core.SchemaVersionCurrent)},
		},
	}

	_, err = c.svc.Projects.Databases.Documents.Patch(c.documentName(userID), doc).Context(ctx).Do()
	if err != nil {
		return classify(err)
	}

	slog.DebugContext(ctx, "Remote snapshot written",
		"user_id", userID,
		"bytes", len(data))
	return nil
}

func decodeDocument(ctx context.Context, userID string, doc *fs.Document) (*core.Snapshot, bool) {
	field, ok := doc.Fields[fieldSnapshot]
	if !ok || field.StringValue == "" {
		slog.WarnContext(ctx, "Remote document has no snapshot field, treating as absent",
			"user_id", userID)
		return nil, false
	}
	snap, err := core.DecodeSnapshot([]byte(field.StringValue))
	if err != nil {
		slog.WarnContext(ctx, "Remote snapshot does not decode, treating as absent",
			"user_id", userID, "error", err)
		return nil, false
	}
	return &snap, true
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", gateway.ErrPermissionDenied, apiErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", gateway.ErrNetwork, err)
}
