package rooms

import (
	"encoding/json"
	"sync"

	"chat-realtime/internal/models"
)

// recorder is a Subscriber that keeps every frame it receives.
type recorder struct {
	sessionID string
	userID    int

	mu     sync.Mutex
	frames []models.Envelope
}

func newRecorder(sessionID string, userID int) *recorder {
	return &recorder{sessionID: sessionID, userID: userID}
}

func (r *recorder) SessionID() string { return r.sessionID }
func (r *recorder) UserID() int       { return r.userID }

func (r *recorder) Deliver(frame []byte) {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		panic(err)
	}
	r.mu.Lock()
	r.frames = append(r.frames, env)
	r.mu.Unlock()
}

func (r *recorder) events(t models.EventType) []models.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Envelope
	for _, env := range r.frames {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func (r *recorder) all() []models.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Envelope(nil), r.frames...)
}

type panicking struct{ recorder }

func (p *panicking) Deliver([]byte) { panic("closed") }

func fixture(id int, memberIDs ...int) *models.Room {
	r := &models.Room{ID: id, Name: "room", IsGroup: len(memberIDs) > 2}
	for _, uid := range memberIDs {
		r.Members = append(r.Members, models.Member{UserID: uid, Username: "user"})
	}
	return r
}
