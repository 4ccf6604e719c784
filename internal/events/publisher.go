package events

import (
	"context"
	"encoding/json"
	"fmt"

	"graphetl/internal/database/kafka"
	"graphetl/internal/models"

	kafkago "github.com/segmentio/kafka-go"
)

// Publisher 封装了向 Kafka 发送构建事件的逻辑。
// 事件以 JSON 发布，key 为 run_id，保证同一次构建的事件落在同一分区。
type Publisher struct {
	writer *kafkago.Writer
}

// NewPublisher 创建一个新的 Publisher 实例。
func NewPublisher(client *kafka.KafkaClient) *Publisher {
	return &Publisher{writer: client.Writer}
}

// Publish 将 BuildEvent 序列化为 JSON 并发送到 Kafka。
func (p *Publisher) Publish(ctx context.Context, event *models.BuildEvent) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal build event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.RunID),
		Value: jsonData,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close 关闭底层的 writer 连接。
func (p *Publisher) Close() error {
	return p.writer.Close()
}
