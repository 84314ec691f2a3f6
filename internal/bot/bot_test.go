package bot

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/bekhruz1723-collab/sTaskManager/internal/repository"
)

func TestLoginStateSafeAgainstReportSnapshot(t *testing.T) {
	b := &Bot{sessions: make(map[int64]*chatSession)}
	sess := b.session(1)

	// the report job snapshots sessions from its own goroutine while the
	// update loop logs users in and out
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.setUser(sess, uint(i%2), "alice")
		}
	}()
	for i := 0; i < 1000; i++ {
		b.loggedInChats()
	}
	wg.Wait()

	b.setUser(sess, 7, "alice")
	chats := b.loggedInChats()
	if len(chats) != 1 || chats[1] != 7 {
		t.Fatalf("snapshot = %v, want chat 1 mapped to user 7", chats)
	}

	b.setUser(sess, 0, "")
	if len(b.loggedInChats()) != 0 {
		t.Error("logged-out session still reported")
	}

	b.setUser(sess, 7, "alice")
	b.clearSession(1)
	if len(b.loggedInChats()) != 0 {
		t.Error("cleared session still reported")
	}
}

func TestMutationErrorTextHidesInternals(t *testing.T) {
	boom := errors.New("pq: connection refused")

	if got := mutationErrorText(boom); got != msgSomethingWrong {
		t.Errorf("raw error: got %q, want the generic message", got)
	}
	if got := mutationErrorText(fmt.Errorf("toggle task: %w", boom)); got != msgSomethingWrong {
		t.Errorf("wrapped error: got %q, want the generic message", got)
	}
	if got := mutationErrorText(repository.ErrAccessDenied); strings.Contains(got, repository.ErrAccessDenied.Error()) {
		t.Errorf("sentinel text leaked into chat message: %q", got)
	}
	if got := mutationErrorText(gorm.ErrRecordNotFound); got == msgSomethingWrong {
		t.Error("missing row should get its own message, not the generic one")
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	markup := confirmDeleteKeyboard(42)

	var data []string
	for _, row := range markup.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil {
				data = append(data, *btn.CallbackData)
			}
		}
	}
	want := []string{cbConfirmDelPrefix + "42", cbTaskPrefix + "42"}
	if len(data) != len(want) {
		t.Fatalf("callback data = %v, want %v", data, want)
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("button %d data = %q, want %q", i, data[i], want[i])
		}
	}

	// a tap on the list's delete button must never carry the confirm prefix
	if strings.HasPrefix(cbConfirmDelPrefix+"42", cbDeletePrefix) {
		t.Error("confirm prefix collides with the delete prefix")
	}

	id, err := parseTaskID(cbConfirmDelPrefix+"42", cbConfirmDelPrefix)
	if err != nil || id != 42 {
		t.Errorf("parseTaskID = %d, %v", id, err)
	}
}
