// Package firestore reads expense records and keeps the delivery ledger and
// chat binding in Cloud Firestore through the REST API.
package firestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/records"

	"google.golang.org/api/googleapi"
	fs "google.golang.org/api/firestore/v1"
	goption "google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"
)

const (
	defaultCollection = "expenses"
	deliveriesPath    = "deliveries"
	chatBindingPath   = "config/telegram"
	createdAtField    = "createdAt"
)

var _ records.Store = (*Client)(nil)

type Client struct {
	svc *fs.Service
	// hc carries the service credentials for runQuery, whose streamed
	// array response the generated RunQuery call cannot decode.
	hc         *http.Client
	root       string // projects/{p}/databases/(default)/documents
	collection string
	logger     *log.Logger
}

// Options configures NewFromEnv.
type Options struct {
	ServiceAccountJSON string
	ServiceAccountFile string
	ProjectID          string
	Collection         string
}

// NewFromEnv builds a client from FIREBASE_SERVICE_ACCOUNT,
// FIREBASE_SERVICE_ACCOUNT_FILE and FIREBASE_PROJECT_ID.
func NewFromEnv(ctx context.Context, logger *log.Logger) (*Client, error) {
	return New(ctx, Options{
		ServiceAccountJSON: strings.TrimSpace(os.Getenv("FIREBASE_SERVICE_ACCOUNT")),
		ServiceAccountFile: strings.TrimSpace(os.Getenv("FIREBASE_SERVICE_ACCOUNT_FILE")),
		ProjectID:          strings.TrimSpace(os.Getenv("FIREBASE_PROJECT_ID")),
		Collection:         strings.TrimSpace(os.Getenv("FIRESTORE_COLLECTION")),
	}, logger)
}

func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	credentialsJSON, err := readCredentials(opts)
	if err != nil {
		return nil, err
	}

	projectID := opts.ProjectID
	if projectID == "" {
		projectID = projectFromCredentials(credentialsJSON)
	}
	if projectID == "" {
		return nil, errors.New("missing firestore project id (set FIREBASE_PROJECT_ID)")
	}

	hc, _, err := htransport.NewClient(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(fs.DatastoreScope))
	if err != nil {
		return nil, fmt.Errorf("create firestore transport: %w", err)
	}

	c, err := newClient(ctx, hc, "", projectID, opts.Collection, logger)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Firestore client created",
		"project_id", projectID,
		"collection", c.collection,
		"credentials_size", len(credentialsJSON))
	return c, nil
}

// newClient builds a Client over an authorized HTTP client. An empty
// endpoint means the public Firestore API.
func newClient(ctx context.Context, hc *http.Client, endpoint, projectID, collection string, logger *log.Logger) (*Client, error) {
	svcOpts := []goption.ClientOption{goption.WithHTTPClient(hc)}
	if endpoint != "" {
		svcOpts = append(svcOpts, goption.WithEndpoint(endpoint))
	}
	svc, err := fs.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore service: %w", err)
	}
	if collection == "" {
		collection = defaultCollection
	}
	return &Client{
		svc:        svc,
		hc:         hc,
		root:       fmt.Sprintf("projects/%s/databases/(default)/documents", projectID),
		collection: collection,
		logger:     logger,
	}, nil
}

func readCredentials(opts Options) ([]byte, error) {
	switch {
	case opts.ServiceAccountJSON != "":
		return []byte(opts.ServiceAccountJSON), nil
	case opts.ServiceAccountFile != "":
		b, err := os.ReadFile(opts.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set FIREBASE_SERVICE_ACCOUNT or FIREBASE_SERVICE_ACCOUNT_FILE)")
	}
}

func projectFromCredentials(b []byte) string {
	var sa struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(b, &sa); err != nil {
		return ""
	}
	return sa.ProjectID
}

// FetchRecords queries the expense collection for documents whose
// createdAt string falls within [start, end], oldest first. Documents with
// an unparseable createdAt are skipped and counted in the log.
func (c *Client) FetchRecords(ctx context.Context, start, end time.Time) ([]core.Record, error) {
	if c.svc == nil || c.hc == nil {
		return nil, errors.New("firestore service not initialized")
	}

	results, err := c.runQuery(ctx, rangeQuery(c.collection, start, end))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.collection, err)
	}

	var (
		out     []core.Record
		skipped int
	)
	for _, res := range results {
		if res == nil || res.Document == nil {
			continue
		}
		fields, err := wireFields(res.Document)
		if err != nil {
			skipped++
			continue
		}
		r, err := decodeRecord(docID(res.Document.Name), fields)
		if err != nil {
			skipped++
			continue
		}
		// Timestamp-typed createdAt values never match a string range, so
		// anything returned here is already in bounds; keep the check anyway.
		if r.CreatedAt.Before(start) || r.CreatedAt.After(end) {
			continue
		}
		out = append(out, r)
	}

	c.logger.DebugContext(ctx, "Fetched records",
		"from", core.FormatISO(start),
		"to", core.FormatISO(end),
		"matched", len(out),
		"skipped", skipped)
	return out, nil
}

// rangeQuery selects collection documents with start <= createdAt <= end,
// comparing the stored ISO strings.
func rangeQuery(collection string, start, end time.Time) *fs.RunQueryRequest {
	bound := func(op string, t time.Time) *fs.Filter {
		return &fs.Filter{FieldFilter: &fs.FieldFilter{
			Field: &fs.FieldReference{FieldPath: createdAtField},
			Op:    op,
			Value: &fs.Value{StringValue: core.FormatISO(t)},
		}}
	}
	return &fs.RunQueryRequest{StructuredQuery: &fs.StructuredQuery{
		From: []*fs.CollectionSelector{{CollectionId: collection}},
		Where: &fs.Filter{CompositeFilter: &fs.CompositeFilter{
			Op: "AND",
			Filters: []*fs.Filter{
				bound("GREATER_THAN_OR_EQUAL", start),
				bound("LESS_THAN_OR_EQUAL", end),
			},
		}},
		OrderBy: []*fs.Order{{
			Field:     &fs.FieldReference{FieldPath: createdAtField},
			Direction: "ASCENDING",
		}},
	}}
}

func (c *Client) runQuery(ctx context.Context, query *fs.RunQueryRequest) ([]*fs.RunQueryResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	url := c.svc.BasePath + "v1/" + c.root + ":runQuery"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, err
	}

	var results []*fs.RunQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return results, nil
}

func (c *Client) LastDelivery(ctx context.Context, periodKey string) (core.DeliveryMark, error) {
	fields, err := c.get(ctx, deliveriesPath+"/"+periodKey)
	if err != nil {
		return core.DeliveryMark{}, err
	}
	return decodeMark(periodKey, fields), nil
}

func (c *Client) MarkDelivered(ctx context.Context, mark core.DeliveryMark) error {
	if err := mark.Validate(); err != nil {
		return err
	}
	return c.patch(ctx, deliveriesPath+"/"+mark.PeriodKey, markDocument(mark))
}

// ClaimDelivery creates deliveries/{period}; Firestore rejects the create
// with 409 when the document already exists.
func (c *Client) ClaimDelivery(ctx context.Context, mark core.DeliveryMark) (bool, error) {
	if err := mark.Validate(); err != nil {
		return false, err
	}
	if c.svc == nil {
		return false, errors.New("firestore service not initialized")
	}
	_, err := c.svc.Projects.Databases.Documents.
		CreateDocument(c.root, deliveriesPath, markDocument(mark)).
		DocumentId(mark.PeriodKey).
		Context(ctx).
		Do()
	if err != nil {
		if hasStatus(err, http.StatusConflict) {
			return false, nil
		}
		return false, fmt.Errorf("claim %s/%s: %w", deliveriesPath, mark.PeriodKey, err)
	}
	return true, nil
}

// ReleaseDelivery deletes the claim with an update-time precondition so a
// mark written in between survives.
func (c *Client) ReleaseDelivery(ctx context.Context, periodKey, runID string) error {
	if c.svc == nil {
		return errors.New("firestore service not initialized")
	}
	name := c.root + "/" + deliveriesPath + "/" + periodKey
	doc, err := c.svc.Projects.Databases.Documents.Get(name).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("get %s/%s: %w", deliveriesPath, periodKey, err)
	}
	fields, err := wireFields(doc)
	if err != nil {
		return err
	}
	if m := decodeMark(periodKey, fields); !m.Claimed() || m.RunID != runID {
		return nil
	}
	_, err = c.svc.Projects.Databases.Documents.Delete(name).
		CurrentDocumentUpdateTime(doc.UpdateTime).
		Context(ctx).
		Do()
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("release %s/%s: %w", deliveriesPath, periodKey, err)
	}
	return nil
}

func markDocument(mark core.DeliveryMark) *fs.Document {
	return &fs.Document{Fields: map[string]fs.Value{
		"periodKey":   {StringValue: mark.PeriodKey},
		"label":       {StringValue: mark.Label},
		"state":       {StringValue: mark.State},
		"runId":       {StringValue: mark.RunID},
		"deliveredAt": {StringValue: mark.DeliveredAt.UTC().Format(time.RFC3339Nano)},
	}}
}

func (c *Client) ChatBinding(ctx context.Context) (core.ChatBinding, error) {
	fields, err := c.get(ctx, chatBindingPath)
	if err != nil {
		return core.ChatBinding{}, err
	}
	b := decodeBinding(fields)
	if err := b.Validate(); err != nil {
		return core.ChatBinding{}, fmt.Errorf("stored chat binding: %w", err)
	}
	return b, nil
}

// SaveChatBinding overwrites config/telegram, the document the /start
// command has always written.
func (c *Client) SaveChatBinding(ctx context.Context, b core.ChatBinding) error {
	if err := b.Validate(); err != nil {
		return err
	}
	doc := &fs.Document{Fields: map[string]fs.Value{
		"chatId":    {IntegerValue: b.ChatID, ForceSendFields: []string{"IntegerValue"}},
		"userId":    {IntegerValue: b.UserID, ForceSendFields: []string{"IntegerValue"}},
		"firstName": {StringValue: b.FirstName},
		"updatedAt": {StringValue: b.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	}}
	return c.patch(ctx, chatBindingPath, doc)
}

func (c *Client) get(ctx context.Context, path string) (map[string]wireValue, error) {
	if c.svc == nil {
		return nil, errors.New("firestore service not initialized")
	}
	doc, err := c.svc.Projects.Databases.Documents.Get(c.root + "/" + path).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, records.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return wireFields(doc)
}

func (c *Client) patch(ctx context.Context, path string, doc *fs.Document) error {
	if c.svc == nil {
		return errors.New("firestore service not initialized")
	}
	if _, err := c.svc.Projects.Databases.Documents.Patch(c.root+"/"+path, doc).Context(ctx).Do(); err != nil {
		return fmt.Errorf("patch %s: %w", path, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

func docID(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
