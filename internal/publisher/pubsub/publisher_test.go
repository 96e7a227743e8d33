package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPublisherPublishesJSON(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	_, err = client.CreateTopic(ctx, "runs")
	require.NoError(t, err)

	pub := New(client, "runs")
	id, err := pub.Publish(ctx, "", map[string]string{"run_id": "run-1", "status": "succeeded"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "application/json", msgs[0].Attributes["content_type"])

	require.NoError(t, pub.Close())
}

func TestPublisherRequiresClientAndTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "runs").Publish(context.Background(), "", 1)
	require.ErrorContains(t, err, "not configured")
	require.NoError(t, New(nil, "").Close())
}

func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	assert.Equal(t, "00-abc", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}
