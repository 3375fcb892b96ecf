package worker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/retroboard/internal/auth"
	"github.com/thebtf/retroboard/internal/config"
	"github.com/thebtf/retroboard/internal/events"
	"github.com/thebtf/retroboard/pkg/models"
)

// testService starts a ready service on a temporary SQLite database in development
// auth mode.
func testService(t *testing.T, mutate ...func(*config.Config)) *Service {
	t.Helper()

	dir := t.TempDir()
	t.Setenv(config.KeyDataDir, dir)

	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "test.db")
	cfg.MaxConns = 1
	for _, m := range mutate {
		m(cfg)
	}

	svc := NewService("test", cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, svc.WaitReady(ctx))
	return svc
}

// do sends a request as userID and returns the recorded response.
func do(t *testing.T, svc *Service, method, path string, body interface{}, userID string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(auth.HeaderUserID, userID)
	}
	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

// cardView mirrors the card JSON returned by the API.
type cardView struct {
	ID              string            `json:"id"`
	RetrospectiveID string            `json:"retrospective_id"`
	Content         string            `json:"content"`
	Column          string            `json:"column"`
	AuthorID        string            `json:"author_id"`
	AuthorName      string            `json:"author_name"`
	Votes           int               `json:"votes"`
	Likes           []models.Like     `json:"likes"`
	Reactions       []models.Reaction `json:"reactions"`
	GroupID         *string           `json:"group_id"`
	GroupOrder      *int64            `json:"group_order"`
	IsGroupHead     bool              `json:"is_group_head"`
}

// groupView mirrors the group JSON returned by the API.
type groupView struct {
	ID              string   `json:"id"`
	RetrospectiveID string   `json:"retrospective_id"`
	Column          string   `json:"column"`
	HeadCardID      string   `json:"head_card_id"`
	MemberCardIDs   []string `json:"member_card_ids"`
	IsCollapsed     bool     `json:"is_collapsed"`
	Title           string   `json:"title"`
	DisplayTitle    string   `json:"display_title"`
	CreatedBy       string   `json:"created_by"`
}

type totalsView struct {
	Group        groupView         `json:"group"`
	Cards        []cardView        `json:"cards"`
	AllReactions []models.Reaction `json:"all_reactions"`
	TotalVotes   int               `json:"total_votes"`
	TotalLikes   int               `json:"total_likes"`
}

func createBoard(t *testing.T, svc *Service, title string) string {
	t.Helper()
	rr := do(t, svc, http.MethodPost, "/api/retrospectives", map[string]string{"title": title}, "alice")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var retro models.Retrospective
	decode(t, rr, &retro)
	return retro.ID
}

func createCard(t *testing.T, svc *Service, retroID, column, content string) cardView {
	t.Helper()
	rr := do(t, svc, http.MethodPost, "/api/retrospectives/"+retroID+"/cards",
		map[string]string{"column": column, "content": content}, "alice")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var card cardView
	decode(t, rr, &card)
	return card
}

// eventLog records events delivered on the service bus.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func recordEvents(svc *Service) *eventLog {
	l := &eventLog{}
	svc.bus.Subscribe(func(ev events.Event) {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
	})
	return l
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}
