package toast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"menuboard/pkg/domain"
)

func TestPostUpsertsByKey(t *testing.T) {
	board := NewBoard(WithDismissDelay(0))
	defer board.Close()

	board.Post(domain.Toast{Key: "a", Message: domain.MessageDeleting, Type: domain.ToastLoading})
	board.Post(domain.Toast{Key: "b", Message: domain.MessageSaving, Type: domain.ToastLoading})
	board.Post(domain.Toast{Key: "a", Message: domain.MessageCategoriesDeleted, Type: domain.ToastSuccess})

	toasts := board.List()
	require.Len(t, toasts, 2)
	require.Equal(t, "a", toasts[0].Key)
	require.Equal(t, domain.ToastSuccess, toasts[0].Type)
	require.Equal(t, domain.MessageCategoriesDeleted, toasts[0].Message)
	require.Equal(t, "b", toasts[1].Key)
}

func TestTerminalToastsAutoDismiss(t *testing.T) {
	board := NewBoard(WithDismissDelay(20 * time.Millisecond))
	defer board.Close()

	board.Post(domain.Toast{Key: "op", Message: domain.MessageSaving, Type: domain.ToastLoading})
	time.Sleep(40 * time.Millisecond)
	_, ok := board.Get("op")
	require.True(t, ok, "loading toasts never expire")

	board.Post(domain.Toast{Key: "op", Message: domain.MessageOrderSaved, Type: domain.ToastSuccess})
	require.Eventually(t, func() bool {
		_, ok := board.Get("op")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestRepostCancelsPendingDismiss(t *testing.T) {
	board := NewBoard(WithDismissDelay(30 * time.Millisecond))
	defer board.Close()

	board.Post(domain.Toast{Key: "k", Message: domain.MessageFailure, Type: domain.ToastError})
	board.Post(domain.Toast{Key: "k", Message: domain.MessageSaving, Type: domain.ToastLoading})
	time.Sleep(60 * time.Millisecond)

	current, ok := board.Get("k")
	require.True(t, ok)
	require.Equal(t, domain.ToastLoading, current.Type)
}

func TestSubscribeReceivesPostsAndDismissals(t *testing.T) {
	board := NewBoard(WithDismissDelay(0))
	defer board.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errorsOnly, err := board.Subscribe(ctx, func(tt domain.ToastType) bool { return tt == domain.ToastError })
	require.NoError(t, err)

	board.Post(domain.Toast{Key: "ok", Type: domain.ToastSuccess})
	board.Post(domain.Toast{Key: "ko", Message: domain.MessageFailure, Type: domain.ToastError})
	require.True(t, board.Dismiss("ko"))
	require.False(t, board.Dismiss("ko"))

	first := <-errorsOnly
	require.Equal(t, "ko", first.Payload.Toast.Key)
	require.False(t, first.Payload.Dismissed)
	second := <-errorsOnly
	require.True(t, second.Payload.Dismissed)
	require.Len(t, board.List(), 1)
}
