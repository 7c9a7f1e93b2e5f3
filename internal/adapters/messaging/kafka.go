package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"

	"github.com/markethub/marketplace-sync/pkg/interfaces"
)

// KafkaMessaging реализация MessagingPort с использованием Kafka
type KafkaMessaging struct {
	producer       *kafka.Producer
	consumers      map[string]*kafka.Consumer
	consumersMutex sync.RWMutex
	handlers       map[string]map[string]interfaces.MessageHandler // topic -> handlerID -> handler
	handlersMutex  sync.RWMutex
	brokers        []string
	groupID        string
	logger         interfaces.LoggerPort
}

// NewKafkaMessaging создает новый экземпляр KafkaMessaging
func NewKafkaMessaging(brokers []string, groupID string, logger interfaces.LoggerPort) (interfaces.MessagingPort, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":            strings.Join(brokers, ","),
		"client.id":                    "marketplace-sync-producer",
		"acks":                         "all", // максимальная надежность
		"retries":                      5,
		"retry.backoff.ms":             500,
		"compression.type":             "snappy",
		"linger.ms":                    10,    // небольшая задержка для батчинга
		"batch.size":                   16384, // размер пакета в байтах
		"message.max.bytes":            1000000,
		"queue.buffering.max.messages": 100000, // размер внутреннего буфера
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka producer: %w", err)
	}

	return &KafkaMessaging{
		producer:  producer,
		consumers: make(map[string]*kafka.Consumer),
		handlers:  make(map[string]map[string]interfaces.MessageHandler),
		brokers:   brokers,
		groupID:   groupID,
		logger:    logger,
	}, nil
}

// messageToKafkaMessage преобразует сообщение в kafka.Message
func messageToKafkaMessage(topic string, message []byte, key string) *kafka.Message {
	kafkaHeaders := []kafka.Header{
		{Key: "message_id", Value: []byte(uuid.New().String())},
		{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339Nano))},
	}

	var keyBytes []byte
	if key != "" {
		keyBytes = []byte(key)
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          message,
		Key:            keyBytes,
		Headers:        kafkaHeaders,
	}
}

// kafkaMessageToMessage преобразует kafka.Message в Message
func kafkaMessageToMessage(msg *kafka.Message) *interfaces.Message {
	headers := make(map[string]string)
	for _, header := range msg.Headers {
		headers[header.Key] = string(header.Value)
	}

	var key string
	if msg.Key != nil {
		key = string(msg.Key)
	}

	publishedAt := time.Now()
	if tsStr, ok := headers["timestamp"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, tsStr); err == nil {
			publishedAt = ts
		}
	}

	return &interfaces.Message{
		ID:          headers["message_id"],
		Topic:       *msg.TopicPartition.Topic,
		Key:         key,
		Value:       msg.Value,
		Headers:     headers,
		PublishedAt: publishedAt,
	}
}

// Publish публикует сообщение в указанную тему
func (k *KafkaMessaging) Publish(ctx context.Context, topic string, message []byte) error {
	msg := messageToKafkaMessage(topic, message, "")
	return k.producer.Produce(msg, nil)
}

// PublishWithKey публикует сообщение с указанным ключом
func (k *KafkaMessaging) PublishWithKey(ctx context.Context, topic string, key string, message []byte) error {
	msg := messageToKafkaMessage(topic, message, key)
	return k.producer.Produce(msg, nil)
}

// Subscribe подписывается на указанную тему и обрабатывает сообщения с помощью handler
func (k *KafkaMessaging) Subscribe(ctx context.Context, topic string, handler interfaces.MessageHandler) (func() error, error) {
	config := &interfaces.ConsumerConfig{
		GroupID:            k.groupID,
		AutoCommit:         true,
		AutoCommitInterval: 5 * time.Second,
		PollTimeout:        100 * time.Millisecond,
	}

	// Уникальный ID для обработчика
	handlerID := uuid.New().String()

	k.handlersMutex.Lock()
	if _, ok := k.handlers[topic]; !ok {
		k.handlers[topic] = make(map[string]interfaces.MessageHandler)
	}
	k.handlers[topic][handlerID] = handler
	k.handlersMutex.Unlock()

	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers":       strings.Join(k.brokers, ","),
		"group.id":                config.GroupID,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      config.AutoCommit,
		"auto.commit.interval.ms": int(config.AutoCommitInterval.Milliseconds()),
		"session.timeout.ms":      30000,
		"max.poll.interval.ms":    300000,
		"heartbeat.interval.ms":   3000,
		"fetch.wait.max.ms":       500,
		"reconnect.backoff.ms":    50,
		"reconnect.backoff.max.ms": 10000,
	}

	consumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		k.handlersMutex.Lock()
		delete(k.handlers[topic], handlerID)
		k.handlersMutex.Unlock()
		return nil, fmt.Errorf("ошибка создания Kafka consumer: %w", err)
	}

	if err = consumer.Subscribe(topic, nil); err != nil {
		k.handlersMutex.Lock()
		delete(k.handlers[topic], handlerID)
		k.handlersMutex.Unlock()
		consumer.Close()
		return nil, fmt.Errorf("ошибка подписки на топик %s: %w", topic, err)
	}

	k.consumersMutex.Lock()
	k.consumers[handlerID] = consumer
	k.consumersMutex.Unlock()

	// обработка сообщений в отдельной горутине
	go k.consumeMessages(ctx, consumer, topic, handlerID, config)

	// функция для отмены подписки
	unsubscribe := func() error {
		k.handlersMutex.Lock()
		delete(k.handlers[topic], handlerID)
		k.handlersMutex.Unlock()

		k.consumersMutex.Lock()
		consumer := k.consumers[handlerID]
		delete(k.consumers, handlerID)
		k.consumersMutex.Unlock()

		if consumer != nil {
			return consumer.Close()
		}
		return nil
	}

	return unsubscribe, nil
}

// consumeMessages обрабатывает сообщения из Kafka
func (k *KafkaMessaging) consumeMessages(ctx context.Context, consumer *kafka.Consumer, topic, handlerID string, config *interfaces.ConsumerConfig) {
	for {
		select {
		case <-ctx.Done():
			// Контекст отменен, завершаем обработку
			return
		default:
			ev := consumer.Poll(int(config.PollTimeout.Milliseconds()))
			if ev == nil {
				continue
			}

			switch e := ev.(type) {
			case *kafka.Message:
				msg := kafkaMessageToMessage(e)

				k.handlersMutex.RLock()
				handlers, ok := k.handlers[topic]
				if !ok {
					k.handlersMutex.RUnlock()
					continue
				}
				handler, ok := handlers[handlerID]
				k.handlersMutex.RUnlock()
				if !ok {
					continue
				}

				if err := handler(ctx, msg); err != nil {
					k.logger.Error("ошибка обработки сообщения",
						interfaces.LogField{Key: "topic", Value: topic},
						interfaces.LogField{Key: "message_id", Value: msg.ID},
						interfaces.LogField{Key: "error", Value: err.Error()},
					)
					continue
				}

				if !config.AutoCommit {
					if _, err := consumer.CommitMessage(e); err != nil {
						k.logger.Error("ошибка подтверждения сообщения",
							interfaces.LogField{Key: "topic", Value: topic},
							interfaces.LogField{Key: "error", Value: err.Error()},
						)
					}
				}

			case kafka.Error:
				k.logger.Error("ошибка Kafka",
					interfaces.LogField{Key: "topic", Value: topic},
					interfaces.LogField{Key: "code", Value: e.Code().String()},
					interfaces.LogField{Key: "error", Value: e.Error()},
				)
				if e.Code() == kafka.ErrAllBrokersDown {
					// Критическая ошибка, завершаем обработку
					return
				}

			case kafka.PartitionEOF:
				// Достигнут конец партиции, это нормальная ситуация

			default:
				// Другие события Kafka
			}
		}
	}
}

// Close закрывает соединение с системой обмена сообщениями
func (k *KafkaMessaging) Close() error {
	// Закрываем все потребители
	k.consumersMutex.Lock()
	for id, consumer := range k.consumers {
		consumer.Close()
		delete(k.consumers, id)
	}
	k.consumersMutex.Unlock()

	// Закрываем producer
	k.producer.Flush(15 * 1000) // Ждем до 15 секунд для отправки всех сообщений
	k.producer.Close()

	return nil
}
