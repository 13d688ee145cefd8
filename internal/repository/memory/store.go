// Package memory is an in-process store with the same constraint semantics as
// the PostgreSQL repositories: unique (exam, participant) sessions, one
// response per (session, question) and a single terminal transition per
// session. It backs STORE_DRIVER=memory and the service and handler tests.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/model"
)

type responseKey struct {
	session  uuid.UUID
	question uuid.UUID
}

type participantKey struct {
	exam        uuid.UUID
	participant string
}

type db struct {
	mu sync.RWMutex

	users        map[uuid.UUID]model.User
	devices      map[uuid.UUID]model.Device
	exams        map[uuid.UUID]model.Exam
	questions    map[uuid.UUID][]model.Question
	sessions     map[uuid.UUID]model.Session
	participants map[participantKey]uuid.UUID
	responses    map[responseKey]model.Response
	events       []model.EventLog
	nextEventID  int64
}

// Store groups the in-memory repositories over one shared dataset.
type Store struct {
	Users     *UserRepository
	Devices   *DeviceRepository
	Exams     *ExamRepository
	Questions *QuestionRepository
	Sessions  *SessionRepository
	Responses *ResponseRepository
	Events    *EventRepository
}

// NewStore creates an empty store.
func NewStore() *Store {
	d := &db{
		users:        make(map[uuid.UUID]model.User),
		devices:      make(map[uuid.UUID]model.Device),
		exams:        make(map[uuid.UUID]model.Exam),
		questions:    make(map[uuid.UUID][]model.Question),
		sessions:     make(map[uuid.UUID]model.Session),
		participants: make(map[participantKey]uuid.UUID),
		responses:    make(map[responseKey]model.Response),
	}
	return &Store{
		Users:     &UserRepository{db: d},
		Devices:   &DeviceRepository{db: d},
		Exams:     &ExamRepository{db: d},
		Questions: &QuestionRepository{db: d},
		Sessions:  &SessionRepository{db: d},
		Responses: &ResponseRepository{db: d},
		Events:    &EventRepository{db: d},
	}
}

// appendEvent must be called with mu held for writing.
func (d *db) appendEvent(ev model.EventLog) {
	d.nextEventID++
	ev.ID = d.nextEventID
	d.events = append(d.events, ev)
}

// copySession detaches the flag slice and pointer fields from the stored row.
func copySession(s model.Session) model.Session {
	s.Flags = append([]string{}, s.Flags...)
	if s.SubmittedAt != nil {
		t := *s.SubmittedAt
		s.SubmittedAt = &t
	}
	if s.SubmitReason != nil {
		r := *s.SubmitReason
		s.SubmitReason = &r
	}
	if s.Score != nil {
		v := *s.Score
		s.Score = &v
	}
	if s.Total != nil {
		v := *s.Total
		s.Total = &v
	}
	return s
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func timePtr(t time.Time) *time.Time { return &t }
