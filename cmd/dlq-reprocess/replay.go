package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/sales/internal/messaging/kafka"
)

var errUnknownDeadLetter = errors.New("unknown dead letter format")

type replayMessage struct {
	topic     string
	key       string
	value     []byte
	eventType string
	attempts  int
}

// outboxDeadLetter — конверт, который outbox worker кладёт в DLQ после исчерпания попыток.
type outboxDeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	Attempts      int             `json:"attempts"`
}

// extractReplayMessage распознаёт два формата DLQ: сообщение consumer'а
// (kafka.DeadLetter, возвращается в исходный топик) и конверт outbox
// (превращается в kafka.Envelope для outboxTopic).
func extractReplayMessage(msg *sarama.ConsumerMessage, outboxTopic string) (replayMessage, error) {
	var consumed kafka.DeadLetter
	if err := json.Unmarshal(msg.Value, &consumed); err == nil && consumed.OriginalValue != "" {
		topic := strings.TrimSpace(consumed.OriginalTopic)
		if topic == "" {
			topic = kafka.TopicGatewayEvents
		}
		eventType, _ := headerValue(msg, kafka.HeaderEventType)
		return replayMessage{
			topic:     topic,
			key:       consumed.OriginalKey,
			value:     []byte(consumed.OriginalValue),
			eventType: eventType,
			attempts:  consumed.Attempts,
		}, nil
	}

	var dead outboxDeadLetter
	if err := json.Unmarshal(msg.Value, &dead); err != nil {
		return replayMessage{}, fmt.Errorf("%w: %v", errUnknownDeadLetter, err)
	}
	if dead.OutboxID == "" || dead.EventType == "" {
		return replayMessage{}, errUnknownDeadLetter
	}
	if len(dead.Payload) == 0 {
		return replayMessage{}, fmt.Errorf("outbox dead letter %s has no payload", dead.OutboxID)
	}

	encoded, err := json.Marshal(kafka.Envelope{
		ID:            dead.OutboxID,
		AggregateType: dead.AggregateType,
		AggregateID:   dead.AggregateID,
		EventType:     dead.EventType,
		Payload:       dead.Payload,
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := dead.AggregateID
	if key == "" {
		key = dead.OutboxID
	}
	return replayMessage{
		topic:     outboxTopic,
		key:       key,
		value:     encoded,
		eventType: dead.EventType,
		attempts:  dead.Attempts,
	}, nil
}

func publishReplay(producer replayProducer, msg replayMessage) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}

	headers := []sarama.RecordHeader{
		{Key: []byte(kafka.HeaderRetryCount), Value: []byte(strconv.Itoa(msg.attempts))},
	}
	if msg.eventType != "" {
		headers = append(headers, sarama.RecordHeader{Key: []byte(kafka.HeaderEventType), Value: []byte(msg.eventType)})
	}

	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic:     msg.topic,
		Key:       sarama.StringEncoder(msg.key),
		Value:     sarama.ByteEncoder(msg.value),
		Headers:   headers,
		Timestamp: time.Now().UTC(),
	})
	return err
}

func headerValue(msg *sarama.ConsumerMessage, key string) (string, bool) {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value), true
		}
	}
	return "", false
}
