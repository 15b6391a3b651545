package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSender struct{}

func (failingSender) Send(context.Context, Message) error {
	return errors.New("smtp down")
}

func TestNotifyBooked(t *testing.T) {
	stub := NewStubEmailSender(nil)
	loc := time.FixedZone("CET", 3600)
	svc := NewService(stub, " me@example.com ", loc, nil)

	err := svc.NotifyBooked(context.Background(), Booking{
		Category: "Beach volleyball court",
		Court:    "Beach court 2",
		Start:    time.Date(2024, 7, 20, 18, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 7, 20, 19, 0, 0, 0, time.UTC),
		MemberID: 42,
		RunID:    "run-1",
	})
	require.NoError(t, err)

	sent := stub.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "me@example.com", sent[0].To)
	assert.Equal(t, "Booked: Beach volleyball court on Sat 20 Jul 19:00", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "Court: Beach court 2")
	assert.Contains(t, sent[0].Text, "Start: 2024-07-20 19:00 CET")
	assert.Contains(t, sent[0].Text, "Member: 42")
	assert.Contains(t, sent[0].Text, "Run: run-1")
}

func TestNotifyBooked_Disabled(t *testing.T) {
	stub := NewStubEmailSender(nil)
	require.NoError(t, NewService(stub, "", nil, nil).NotifyBooked(context.Background(), Booking{}))
	assert.Empty(t, stub.Sent())

	require.NoError(t, NewService(nil, "me@example.com", nil, nil).NotifyBooked(context.Background(), Booking{}))

	var svc *Service
	require.NoError(t, svc.NotifyBooked(context.Background(), Booking{}))
}

func TestNotifyBooked_SendFailure(t *testing.T) {
	svc := NewService(failingSender{}, "me@example.com", nil, nil)
	err := svc.NotifyBooked(context.Background(), Booking{Category: "Gym", Start: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
}
