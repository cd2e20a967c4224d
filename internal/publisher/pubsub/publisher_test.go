package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func fakeServer(t *testing.T, topicID string) (*pstest.Server, []option.ClientOption) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	opts := []option.ClientOption{option.WithGRPCConn(conn)}

	if topicID != "" {
		admin, err := pubsub.NewClient(context.Background(), "proj", opts...)
		require.NoError(t, err)
		_, err = admin.CreateTopic(context.Background(), topicID)
		require.NoError(t, err)
	}
	return srv, opts
}

func TestPublishDeliversJSON(t *testing.T) {
	t.Parallel()

	srv, opts := fakeServer(t, "runs")
	pub, err := New(context.Background(), Config{
		ProjectID:  "proj",
		TopicID:    "runs",
		Attributes: map[string]string{"event": "run.completed"},
	}, opts...)
	require.NoError(t, err)
	defer func() { require.NoError(t, pub.Close()) }()

	id, err := pub.Publish(context.Background(), map[string]any{"run_id": "r-1", "extracted": 2})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "r-1", got["run_id"])
	require.Equal(t, "run.completed", msgs[0].Attributes["event"])
}

func TestNewMissingTopic(t *testing.T) {
	t.Parallel()

	_, opts := fakeServer(t, "")
	_, err := New(context.Background(), Config{ProjectID: "proj", TopicID: "absent"}, opts...)
	require.ErrorContains(t, err, "does not exist")
}

func TestNewRequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{ProjectID: "proj"})
	require.Error(t, err)

	var nilPub *Publisher
	_, err = nilPub.Publish(context.Background(), "x")
	require.Error(t, err)
	require.NoError(t, nilPub.Close())
}
