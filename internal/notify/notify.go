// Package notify announces finished jobs on an EventBridge bus.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// Event source and detail type of every published event.
const (
	Source             = "videointel"
	DetailTypeVideoJob = "VideoProcessed"
)

// VideoProcessed is the event detail emitted when a job reaches a terminal
// status.
type VideoProcessed struct {
	JobID      string `json:"jobId"`
	VideoID    string `json:"videoId"`
	Status     string `json:"status"`
	RecordPath string `json:"recordPath,omitempty"`
	ShotCount  int    `json:"shotCount"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Publisher delivers job events.
type Publisher interface {
	Publish(ctx context.Context, event VideoProcessed) error
}

// EventBridgeAPI is the subset of the EventBridge client used here.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher puts events on BusName, or the default bus when
// BusName is empty.
type EventBridgePublisher struct {
	Client  EventBridgeAPI
	BusName string
}

var _ Publisher = (*EventBridgePublisher)(nil)

func (p *EventBridgePublisher) Publish(ctx context.Context, event VideoProcessed) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal VideoProcessed: %w", err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(DetailTypeVideoJob),
		Detail:     aws.String(string(detail)),
	}
	if p.BusName != "" {
		entry.EventBusName = aws.String(p.BusName)
	}

	result, err := p.Client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		log.Error().Err(err).Str("jobId", event.JobID).Str("videoId", event.VideoID).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(e.ErrorCode)).
					Str("errorMessage", aws.ToString(e.ErrorMessage)).
					Str("jobId", event.JobID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("PutEvents: %d entries failed", result.FailedEntryCount)
	}

	log.Debug().Str("jobId", event.JobID).Str("status", event.Status).Msg("VideoProcessed emitted to EventBridge")
	return nil
}

// LogPublisher writes events to the log instead of a bus.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event VideoProcessed) error {
	log.Info().
		Str("jobId", event.JobID).
		Str("videoId", event.VideoID).
		Str("status", event.Status).
		Str("record", event.RecordPath).
		Int("shots", event.ShotCount).
		Int64("durationMs", event.DurationMs).
		Msg("Video processed")
	return nil
}
