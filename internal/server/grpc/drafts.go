package grpc

import (
	"context"
	"sync"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/remote"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DraftRecord is the server copy of a survey draft.
type DraftRecord struct {
	SurveyID   string
	Version    int64
	Content    []byte
	SavedAt    time.Time
	DeviceID   string
	ReceivedAt time.Time
}

// DraftStore keeps the newest version of every draft in memory. A save with
// a version not above the stored one is acknowledged without being applied,
// which makes retried saves harmless.
type DraftStore struct {
	mu     sync.RWMutex
	drafts map[string]DraftRecord
	now    func() time.Time
}

func NewDraftStore() *DraftStore {
	return &DraftStore{drafts: make(map[string]DraftRecord), now: time.Now}
}

func (s *DraftStore) SaveDraft(ctx context.Context, req *remote.SaveDraftRequest) (*remote.SaveDraftResponse, error) {
	if req.SurveyID == "" {
		return nil, status.Error(codes.InvalidArgument, "survey_id is required")
	}
	if req.Version < 1 {
		return nil, status.Errorf(codes.InvalidArgument, "version must be positive, got %d", req.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.drafts[req.SurveyID]
	if ok && cur.Version >= req.Version {
		return &remote.SaveDraftResponse{SurveyID: req.SurveyID, Version: cur.Version, Applied: false}, nil
	}

	s.drafts[req.SurveyID] = DraftRecord{
		SurveyID:   req.SurveyID,
		Version:    req.Version,
		Content:    append([]byte(nil), req.Content...),
		SavedAt:    req.SavedAt,
		DeviceID:   deviceIDFromContext(ctx),
		ReceivedAt: s.now(),
	}
	return &remote.SaveDraftResponse{SurveyID: req.SurveyID, Version: req.Version, Applied: true}, nil
}

// Get returns the stored draft.
func (s *DraftStore) Get(surveyID string) (DraftRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[surveyID]
	return d, ok
}
