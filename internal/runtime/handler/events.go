package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"time"

	"github.com/drblury/shipflow/internal/runtime/jsoncodec"
)

// Batch is a decoded host event: the source it came from and its records.
type Batch struct {
	SourceID string
	Records  []Record
}

// All iterates the records of the batch.
func (b Batch) All() iter.Seq[Record] {
	return slices.Values(b.Records)
}

type hostEvent struct {
	Records []hostRecord `json:"Records"`
}

type hostRecord struct {
	EventSource    string         `json:"eventSource"`
	EventSourceARN string         `json:"eventSourceARN"`
	Kinesis        *kinesisRecord `json:"kinesis"`
	Body           *string        `json:"body"`
	Attributes     map[string]any `json:"attributes"`
	SNS            *snsRecord     `json:"Sns"`
}

type kinesisRecord struct {
	Data                        string  `json:"data"`
	ApproximateArrivalTimestamp float64 `json:"approximateArrivalTimestamp"`
}

type snsRecord struct {
	Message   string `json:"Message"`
	TopicArn  string `json:"TopicArn"`
	Timestamp string `json:"Timestamp"`
}

// DecodeEvent turns a Kinesis, SQS or SNS trigger document into a Batch. The
// source id is the ARN of the stream, queue or topic of the first record.
func DecodeEvent(raw []byte) (Batch, error) {
	var ev hostEvent
	if err := jsoncodec.Unmarshal(raw, &ev); err != nil {
		return Batch{}, fmt.Errorf("decode event: %w", err)
	}
	if len(ev.Records) == 0 {
		return Batch{}, errors.New("decode event: no records")
	}

	var b Batch
	for i, r := range ev.Records {
		rec, source, err := r.decode()
		if err != nil {
			return Batch{}, fmt.Errorf("decode event: record %d: %w", i, err)
		}
		if b.SourceID == "" {
			b.SourceID = source
		}
		b.Records = append(b.Records, rec)
	}
	return b, nil
}

func (r hostRecord) decode() (Record, string, error) {
	switch {
	case r.Kinesis != nil:
		data, err := base64.StdEncoding.DecodeString(r.Kinesis.Data)
		if err != nil {
			return Record{}, "", err
		}
		ms := int64(r.Kinesis.ApproximateArrivalTimestamp * 1000)
		return Record{Data: data, ArrivalTime: time.UnixMilli(ms)}, r.EventSourceARN, nil
	case r.SNS != nil:
		rec := Record{Data: []byte(r.SNS.Message)}
		if t, err := time.Parse(time.RFC3339, r.SNS.Timestamp); err == nil {
			rec.ArrivalTime = t
		}
		return rec, r.SNS.TopicArn, nil
	case r.Body != nil:
		rec := Record{Data: []byte(*r.Body)}
		if sent, ok := r.Attributes["SentTimestamp"].(string); ok {
			if ms, err := strconv.ParseInt(sent, 10, 64); err == nil {
				rec.ArrivalTime = time.UnixMilli(ms)
			}
		}
		return rec, r.EventSourceARN, nil
	default:
		return Record{}, "", fmt.Errorf("unsupported record from %q", r.EventSource)
	}
}
