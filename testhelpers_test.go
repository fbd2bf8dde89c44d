//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/paris-agenda/service-promotion/internal/adapter"
	"github.com/paris-agenda/service-promotion/internal/application"
	"github.com/paris-agenda/service-promotion/internal/config"
	promoEvents "github.com/paris-agenda/service-promotion/internal/events"
	"github.com/paris-agenda/service-promotion/internal/repository"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// promotionStack holds wired-up promotion service components.
type promotionStack struct {
	Ingestion   *application.IngestionService
	Fulfillment *application.FulfillmentService
	Stats       *application.StatsService
	Schedulers  map[string]*application.SchedulerService
	Catalog     *adapter.StaticEventCatalog
	Engagement  *adapter.StaticEngagementSource
	Cleanup     func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers and returns a
// connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_promotion",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=test_promotion sslmode=disable", pgHost, pgPort.Port())

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, db.AutoMigrate(&repository.ActivationModel{}, &repository.ScheduleEntryModel{}))

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, promoEvents.TopicPromotionEvents)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupPromotionStack wires the full promotion service over real postgres and
// kafka, with static catalog and engagement collaborators.
func setupPromotionStack(t *testing.T, db *gorm.DB, brokers []string) *promotionStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	catalog := adapter.NewStaticEventCatalog(
		adapter.CatalogEvent{Key: "concert-integration", Name: "Concert Integration"},
		adapter.CatalogEvent{Key: "expo-integration", Name: "Expo Integration"},
	)
	engagement := adapter.NewStaticEngagementSource()
	publisher := promoEvents.NewKafkaPublisher(brokers, logger)

	activationRepo := repository.NewGormActivationRepository(db)
	scheduleRepo := repository.NewGormScheduleRepository(db)

	schedulers := map[string]*application.SchedulerService{}
	for tier, capacity := range map[string]int{"spotlight": 1, "promoted": 3} {
		schedulers[tier] = application.NewSchedulerService(
			config.TierConfig{Name: tier, Capacity: capacity, RetentionHours: 72},
			paris, scheduleRepo, catalog, publisher, logger,
		)
	}

	return &promotionStack{
		Ingestion:   application.NewIngestionService(activationRepo, nil, publisher, logger),
		Fulfillment: application.NewFulfillmentService(activationRepo, schedulers, "https://parisagenda.example", publisher, logger),
		Stats:       application.NewStatsService(activationRepo, catalog, engagement, logger),
		Schedulers:  schedulers,
		Catalog:     catalog,
		Engagement:  engagement,
		Cleanup:     func() { _ = publisher.Close() },
	}
}

// checkoutEnvelope builds a minimal completed-checkout webhook envelope.
func checkoutEnvelope(t *testing.T, eventID, packageKey string) application.WebhookEnvelope {
	t.Helper()
	object := fmt.Sprintf(`{"id":"cs_%s","amount_total":4900,"currency":"eur","metadata":{"package":%q},"customer_details":{"email":"partner@example.com","name":"Le Trabendo"}}`,
		uuid.New().String()[:8], packageKey)
	return application.WebhookEnvelope{
		ID:     eventID,
		Type:   application.CheckoutCompletedType,
		Object: []byte(object),
	}
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the
// expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) promoEvents.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := promoEvents.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
