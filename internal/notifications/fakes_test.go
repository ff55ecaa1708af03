package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stockwatch/stockwatch/internal/push"
	"github.com/stockwatch/stockwatch/internal/stock"
)

var errNotFound = errors.New("not found")

type fakeStore struct {
	mu        sync.Mutex
	users     []User
	settings  map[string]Settings
	last      map[string]time.Time
	global    map[string]int
	items     map[string][]stock.Item
	records   []Record
	touches   map[string]int
	loads     map[string]int
	listErr   error
	itemsErr  map[string]error
	recordErr error
}

func newFakeStore(users ...User) *fakeStore {
	return &fakeStore{
		users:    users,
		settings: map[string]Settings{},
		last:     map[string]time.Time{},
		global:   map[string]int{},
		items:    map[string][]stock.Item{},
		touches:  map[string]int{},
		loads:    map[string]int{},
		itemsErr: map[string]error{},
	}
}

func (s *fakeStore) ListUsers(ctx context.Context) ([]User, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.users, nil
}

func (s *fakeStore) GetUser(ctx context.Context, userID string) (User, error) {
	for _, u := range s.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return User{}, errNotFound
}

func (s *fakeStore) LoadPreferences(ctx context.Context, userID string) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads[userID]++
	p := Preferences{
		Settings:        DefaultSettings(),
		GlobalThreshold: stock.DefaultGlobalThreshold,
		LastNotified:    s.last[userID],
	}
	if st, ok := s.settings[userID]; ok {
		p.Settings = st
	}
	if g, ok := s.global[userID]; ok {
		p.GlobalThreshold = g
	}
	return p, nil
}

func (s *fakeStore) ListItems(ctx context.Context, userID string) ([]stock.Item, error) {
	if err := s.itemsErr[userID]; err != nil {
		return nil, err
	}
	return s.items[userID], nil
}

func (s *fakeStore) Record(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) Touch(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[userID] = at
	s.touches[userID]++
	return nil
}

func (s *fakeStore) recordsFor(userID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []push.Message
	failTo map[string]error    // by push token
	failOn map[string]error    // by message type
	panics map[string]struct{} // by push token

	// When block is set, Send signals entered and waits for block to close.
	entered chan struct{}
	block   chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{failTo: map[string]error{}, failOn: map[string]error{}, panics: map[string]struct{}{}}
}

func (s *fakeSender) Send(ctx context.Context, msg push.Message) (push.Ticket, error) {
	if _, ok := s.panics[msg.To]; ok {
		panic("gateway client blew up")
	}
	if s.block != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if err := s.failTo[msg.To]; err != nil {
		return push.Ticket{}, err
	}
	if err := s.failOn[msg.Data.Type]; err != nil {
		return push.Ticket{}, err
	}
	return push.Ticket{ID: fmt.Sprintf("t%d", len(s.sent)), Status: "ok"}, nil
}

func qty(name string, n int) stock.Item {
	return stock.Item{ID: "id-" + name, Name: name, Quantity: stock.NumberOf(n)}
}
