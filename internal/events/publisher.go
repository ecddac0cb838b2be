// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

// Package events publishes execution lifecycle events over NATS
// JetStream via Watermill. Publishing is optional; when disabled the
// orchestrator runs with a no-op publisher.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/musicchartsai/chartsync/internal/config"
	"github.com/musicchartsai/chartsync/internal/models"
)

// ExecutionFinishedEvent is the payload published when a sync execution
// reaches a terminal status.
type ExecutionFinishedEvent struct {
	ExecutionID  string                 `json:"execution_id"`
	ScheduleID   string                 `json:"schedule_id"`
	ChartID      string                 `json:"chart_id"`
	Status       models.ExecutionStatus `json:"status"`
	Counts       models.SyncCounts      `json:"counts"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	RetryCount   int                    `json:"retry_count"`
	FinishedAt   time.Time              `json:"finished_at"`
}

// Publisher sends execution lifecycle events through a Watermill
// publisher. Implements chartsync.EventPublisher.
type Publisher struct {
	pub           message.Publisher
	subjectPrefix string
}

// NewNATSPublisher creates a JetStream-backed publisher. Message UUIDs
// double as Nats-Msg-Id so the broker deduplicates redeliveries.
func NewNATSPublisher(cfg *config.EventsConfig, logger *zerolog.Logger) (*Publisher, error) {
	wmLogger := NewLoggerAdapter(logger)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				wmLogger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			wmLogger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return newPublisherWith(pub, cfg.SubjectPrefix), nil
}

// newPublisherWith wires an already-constructed message.Publisher;
// split out so tests can substitute an in-memory pubsub.
func newPublisherWith(pub message.Publisher, subjectPrefix string) *Publisher {
	if subjectPrefix == "" {
		subjectPrefix = "chartsync"
	}
	return &Publisher{pub: pub, subjectPrefix: subjectPrefix}
}

// PublishExecutionFinished publishes the terminal-state event for exec.
func (p *Publisher) PublishExecutionFinished(ctx context.Context, schedule *models.SyncSchedule, exec *models.SyncExecution) error {
	event := ExecutionFinishedEvent{
		ExecutionID:  exec.ID,
		ScheduleID:   schedule.ID,
		ChartID:      schedule.ChartID,
		Status:       exec.Status,
		Counts:       exec.Counts,
		ErrorMessage: exec.ErrorMessage,
		RetryCount:   exec.RetryCount,
		FinishedAt:   time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal execution event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("execution_id", exec.ID)
	msg.Metadata.Set("status", string(exec.Status))

	topic := p.subjectPrefix + ".execution.finished"
	if err := p.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish execution event: %w", err)
	}
	return nil
}

// Close shuts the underlying publisher down.
func (p *Publisher) Close() error {
	return p.pub.Close()
}

// NopPublisher discards all events. Used when event publishing is
// disabled in configuration.
type NopPublisher struct{}

// PublishExecutionFinished implements chartsync.EventPublisher.
func (NopPublisher) PublishExecutionFinished(ctx context.Context, schedule *models.SyncSchedule, exec *models.SyncExecution) error {
	return nil
}
