package pipedrive

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Record is a raw deal as returned by the API. Custom fields are keyed by
// their 40-character hash.
type Record map[string]any

// ID returns the numeric deal id, or 0 when absent.
func (r Record) ID() int64 {
	switch v := r["id"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// FlexString decodes a JSON string or number into a string. Option ids come
// back as numbers from /dealFields and as strings on deals.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

// Note is a deal note.
type Note struct {
	ID      int64  `json:"id"`
	DealID  int64  `json:"deal_id"`
	Content string `json:"content"`
	AddTime string `json:"add_time"`
}

// FieldOption is one option of an enum or set custom field.
type FieldOption struct {
	ID    FlexString `json:"id"`
	Label string     `json:"label"`
}

// DealField describes a deal field definition from /dealFields.
type DealField struct {
	ID        int64         `json:"id"`
	Key       string        `json:"key"`
	Name      string        `json:"name"`
	FieldType string        `json:"field_type"`
	Options   []FieldOption `json:"options"`
}

// Stage is a pipeline stage.
type Stage struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	PipelineID int    `json:"pipeline_id"`
	OrderNr    int    `json:"order_nr"`
}

// ListDealsParams filters GET /deals.
type ListDealsParams struct {
	StageID int
	Status  string
}

type pagination struct {
	Start                 int  `json:"start"`
	Limit                 int  `json:"limit"`
	MoreItemsInCollection bool `json:"more_items_in_collection"`
	NextStart             int  `json:"next_start"`
}

type additionalData struct {
	Pagination *pagination `json:"pagination"`
}

type envelope[T any] struct {
	Success        bool            `json:"success"`
	Data           T               `json:"data"`
	Error          string          `json:"error"`
	AdditionalData *additionalData `json:"additional_data"`
}
