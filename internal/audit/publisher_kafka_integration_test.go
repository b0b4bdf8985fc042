//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"civica/internal/audit"
	id "civica/pkg/domain"
	"civica/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	broker string
	topic  string
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.broker = mgr.GetRedpanda(s.T()).Broker
}

func (s *KafkaPublisherSuite) SetupTest() {
	s.topic = "civica.audit.test." + uuid.NewString()

	client, err := kgo.NewClient(kgo.SeedBrokers(s.broker))
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err = kadm.NewClient(client).CreateTopic(ctx, 1, 1, nil, s.topic)
	s.Require().NoError(err)
}

func (s *KafkaPublisherSuite) TestPublishedEventsArriveInOrderKeyedByRequest() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	publisher, err := audit.NewKafkaPublisher([]string{s.broker}, s.topic)
	s.Require().NoError(err)
	defer publisher.Close()

	requestID := id.NewRequestID()
	actor := id.UserID(uuid.New())
	actions := []audit.Action{audit.ActionRequestCreated, audit.ActionRequestSubmitted, audit.ActionRequestApproved}
	for _, action := range actions {
		s.Require().NoError(publisher.Publish(ctx, audit.Event{
			Action:     action,
			Timestamp:  time.Now().UTC(),
			RequestID:  requestID,
			EntityType: id.EntityTypeFacility,
			ActorID:    actor,
		}))
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) < len(actions) {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(fetches.Err())
		records = append(records, fetches.Records()...)
	}
	s.Require().Len(records, len(actions))

	for i, record := range records {
		s.Equal(requestID.String(), string(record.Key))

		var payload struct {
			Action     string `json:"action"`
			RequestID  string `json:"requestId"`
			EntityType string `json:"entityType"`
			ActorID    string `json:"actorId"`
			Timestamp  string `json:"timestamp"`
		}
		s.Require().NoError(json.Unmarshal(record.Value, &payload))
		s.Equal(string(actions[i]), payload.Action)
		s.Equal(requestID.String(), payload.RequestID)
		s.Equal("facility", payload.EntityType)
		s.Equal(actor.String(), payload.ActorID)
		_, err := time.Parse(time.RFC3339Nano, payload.Timestamp)
		s.NoError(err)
	}
}
