package firestore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gastos/internal/core"

	fs "google.golang.org/api/firestore/v1"
)

// wireValue mirrors the JSON encoding of a Firestore Value. Decoding goes
// through JSON so the same code handles REST payloads and test fixtures.
type wireValue struct {
	StringValue    *string         `json:"stringValue,omitempty"`
	IntegerValue   *string         `json:"integerValue,omitempty"`
	DoubleValue    json.RawMessage `json:"doubleValue,omitempty"`
	BooleanValue   *bool           `json:"booleanValue,omitempty"`
	TimestampValue *string         `json:"timestampValue,omitempty"`
}

func wireFields(doc *fs.Document) (map[string]wireValue, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	raw, err := json.Marshal(doc.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields of %s: %w", doc.Name, err)
	}
	return parseFields(raw)
}

func parseFields(raw []byte) (map[string]wireValue, error) {
	fields := map[string]wireValue{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}

// any returns the Go value carried by v, or nil for null and unsupported kinds.
func (v wireValue) any() any {
	switch {
	case v.StringValue != nil:
		return *v.StringValue
	case v.IntegerValue != nil:
		return *v.IntegerValue
	case len(v.DoubleValue) > 0:
		var f float64
		if err := json.Unmarshal(v.DoubleValue, &f); err == nil {
			return f
		}
		// NaN and Infinity arrive as strings; CoerceAmount maps them to zero.
		return nil
	case v.TimestampValue != nil:
		return *v.TimestampValue
	default:
		return nil
	}
}

func (v wireValue) str() string {
	switch x := v.any().(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func (v wireValue) int64() int64 {
	switch x := v.any().(type) {
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n
	case float64:
		return int64(x)
	default:
		return 0
	}
}

func (v wireValue) time() (time.Time, error) {
	s := strings.TrimSpace(v.str())
	if s == "" {
		return time.Time{}, core.ErrMissingCreated
	}
	return time.Parse(time.RFC3339Nano, s)
}

// decodeRecord maps an expense document. createdAt may be an ISO string or
// a Firestore timestamp; amount may be any numeric or string encoding.
func decodeRecord(id string, fields map[string]wireValue) (core.Record, error) {
	created, err := fields["createdAt"].time()
	if err != nil {
		return core.Record{}, fmt.Errorf("document %s createdAt: %w", id, err)
	}
	return core.Record{
		ID:          id,
		Category:    core.Category(strings.TrimSpace(fields["category"].str())),
		Amount:      core.CoerceAmount(fields["amount"].any()),
		Description: fields["description"].str(),
		Contributor: core.Contributor{
			Name:   fields["userName"].str(),
			UserID: fields["userId"].str(),
		},
		CreatedAt: created,
	}, nil
}

func decodeMark(periodKey string, fields map[string]wireValue) core.DeliveryMark {
	m := core.DeliveryMark{
		PeriodKey: periodKey,
		Label:     fields["label"].str(),
		State:     fields["state"].str(),
		RunID:     fields["runId"].str(),
	}
	if t, err := fields["deliveredAt"].time(); err == nil {
		m.DeliveredAt = t
	}
	return m
}

func decodeBinding(fields map[string]wireValue) core.ChatBinding {
	b := core.ChatBinding{
		ChatID:    fields["chatId"].int64(),
		UserID:    fields["userId"].int64(),
		FirstName: fields["firstName"].str(),
	}
	if t, err := fields["updatedAt"].time(); err == nil {
		b.UpdatedAt = t
	}
	return b
}
