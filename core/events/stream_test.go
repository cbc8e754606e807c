package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamBacklogAndLiveUpdates(t *testing.T) {
	stream := NewStream(2)
	stream.Emit(PresaleEnded{Owner: testAddr(1), TotalSold: 1})
	stream.Emit(PresaleReactivated{Owner: testAddr(1)})
	stream.Emit(PresaleEnded{Owner: testAddr(1), TotalSold: 2})
	stream.Emit(nil)
	require.Equal(t, uint64(3), stream.Sequence())

	backlog, updates, cancel := stream.Subscribe(0)
	require.Len(t, backlog, 2)
	require.Equal(t, uint64(2), backlog[0].Sequence)
	require.Equal(t, TypePresaleReactivated, backlog[0].Event.Type)
	require.Equal(t, uint64(3), backlog[1].Sequence)

	resumed, _, cancelResumed := stream.Subscribe(2)
	require.Len(t, resumed, 1)
	cancelResumed()

	stream.Emit(PresaleReactivated{Owner: testAddr(1), ReactivationTime: 9})
	update := <-updates
	require.Equal(t, uint64(4), update.Sequence)
	require.Equal(t, "9", update.Event.Attributes["reactivationTime"])

	cancel()
	cancel()
	_, open := <-updates
	require.False(t, open)
	stream.Emit(PresaleEnded{Owner: testAddr(1)})
}

func TestStreamDropsForSlowSubscribers(t *testing.T) {
	stream := NewStream(0)
	_, updates, cancel := stream.Subscribe(0)
	defer cancel()
	for i := 0; i < streamBuffer+5; i++ {
		stream.Emit(PresaleEnded{Owner: testAddr(1), TotalSold: uint64(i)})
	}
	require.Len(t, updates, streamBuffer)
	require.Equal(t, uint64(streamBuffer+5), stream.Sequence())
}
