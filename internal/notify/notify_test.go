package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"referral-service/internal/config"
	"referral-service/internal/dbtest"
	"referral-service/internal/repository"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type publishCall struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	calls  []publishCall
	err    error
	closed bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.calls = append(c.calls, publishCall{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func testPublisher(ch *fakeChannel, dial func() (channel, error)) *Publisher {
	return &Publisher{
		cfg:     config.RabbitConfig{NotifyExchange: "notifications", NotifyRoutingKey: "user.notification"},
		log:     dbtest.Logger(),
		channel: ch,
		dial:    dial,
	}
}

func TestPublisherSendsJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := testPublisher(ch, nil)

	require.NoError(t, p.Notify(context.Background(), 7, "Referral Reward Earned", "You earned 99.90 INR"))
	require.Len(t, ch.calls, 1)

	call := ch.calls[0]
	require.Equal(t, "notifications", call.exchange)
	require.Equal(t, "user.notification", call.key)
	require.Equal(t, amqp.Persistent, call.msg.DeliveryMode)
	require.Equal(t, "application/json", call.msg.ContentType)
	require.NotEmpty(t, call.msg.MessageId)

	var msg Message
	require.NoError(t, json.Unmarshal(call.msg.Body, &msg))
	require.EqualValues(t, 7, msg.UserID)
	require.Equal(t, "You earned 99.90 INR", msg.Message)
	require.False(t, msg.SentAt.IsZero())
}

func TestPublisherReopensClosedChannel(t *testing.T) {
	broken := &fakeChannel{err: amqp.ErrClosed}
	fresh := &fakeChannel{}
	dials := 0
	p := testPublisher(broken, func() (channel, error) {
		dials++
		return fresh, nil
	})

	err := p.Notify(context.Background(), 1, "t", "m")
	require.ErrorIs(t, err, amqp.ErrClosed)

	require.NoError(t, p.Notify(context.Background(), 1, "t", "m"))
	require.Equal(t, 1, dials)
	require.Len(t, fresh.calls, 1)

	p.Close()
	require.True(t, fresh.closed)
}

func TestStorePersistsNotification(t *testing.T) {
	db := dbtest.New(t)
	repo := repository.NewNotificationRepository(db, dbtest.Logger())
	store := NewStore(repo, dbtest.Logger())
	ctx := context.Background()

	require.NoError(t, store.Notify(ctx, 3, "Prime Subscription Approved", "Welcome"))

	list, err := repo.ListByUser(ctx, 3, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Welcome", list[0].Message)
	require.False(t, list[0].IsRead)
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(context.Context, uint, string, string) error {
	s.calls++
	return s.err
}

func TestFanoutReachesEverySink(t *testing.T) {
	errBroker := errors.New("broker down")
	failing := &stubNotifier{err: errBroker}
	ok := &stubNotifier{}

	err := Fanout{failing, ok}.Notify(context.Background(), 1, "t", "m")
	require.ErrorIs(t, err, errBroker)
	require.Equal(t, 1, failing.calls)
	require.Equal(t, 1, ok.calls)

	require.NoError(t, Fanout{ok}.Notify(context.Background(), 1, "t", "m"))
}
