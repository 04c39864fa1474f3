package store

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PrepareCreate flattens doc into a bson.M, assigns an id when "_id" is
// missing or empty and stamps the requested timestamp fields.
func PrepareCreate(doc any, now func() time.Time, opts ...WriteOption) (bson.M, string, error) {
	m, err := ToM(doc)
	if err != nil {
		return nil, "", err
	}

	id, _ := m["_id"].(string)
	if id == "" {
		id = uuid.New().String()
		m["_id"] = id
	}

	o := ApplyWriteOptions(opts)
	if len(o.TimestampFields) > 0 {
		ts := now()
		for _, f := range o.TimestampFields {
			m[f] = ts
		}
	}
	return m, id, nil
}

// ResolveFields replaces ServerTimestamp markers with now().
func ResolveFields(fields Fields, now func() time.Time) bson.M {
	out := make(bson.M, len(fields))
	var ts time.Time
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			if ts.IsZero() {
				ts = now()
			}
			out[k] = ts
			continue
		}
		out[k] = v
	}
	return out
}

func ToM(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Normalize maps the handful of representations a value can take after a
// BSON round trip onto one comparable form.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case time.Time:
		return x.UTC().Truncate(time.Millisecond)
	case primitive.DateTime:
		return x.Time().UTC()
	default:
		return v
	}
}
