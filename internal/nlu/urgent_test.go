package nlu

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
)

type recordingPublisher struct {
	cases []scheduling.UrgentCase
	err   error
}

func (p *recordingPublisher) PublishUrgentCase(ctx context.Context, c scheduling.UrgentCase) error {
	p.cases = append(p.cases, c)
	return p.err
}

func TestUrgentDesk_OpenAlwaysRecords(t *testing.T) {
	repo := scheduling.NewMemoryRepository()
	pub := &recordingPublisher{}
	desk := NewUrgentDesk(KeywordClassifier{}, repo, nil).WithPublisher(pub)

	c, result, err := desk.Open(context.Background(), "my chest pain is getting worse", "pat-9")
	require.NoError(t, err)
	assert.Equal(t, SeverityEmergency, result.Severity)
	require.NotNil(t, c)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, scheduling.UrgentCaseReceived, c.Status)
	require.NotNil(t, c.PatientID)
	assert.Equal(t, "pat-9", *c.PatientID)

	require.Len(t, pub.cases, 1)
	assert.Equal(t, c.ID, pub.cases[0].ID)

	// routine results are still recorded when the intent was urgent
	c, _, err = desk.Open(context.Background(), "I feel a bit off", "")
	require.NoError(t, err)
	assert.Nil(t, c.PatientID)
	cases, err := repo.ListUrgentCases(context.Background())
	require.NoError(t, err)
	assert.Len(t, cases, 2)
	assert.Len(t, pub.cases, 1, "routine cases are not escalated")
}

func TestUrgentDesk_PublishFailureIgnored(t *testing.T) {
	repo := scheduling.NewMemoryRepository()
	desk := NewUrgentDesk(nil, repo, nil).WithPublisher(&recordingPublisher{err: errors.New("queue down")})

	c, _, err := desk.Open(context.Background(), "shortness of breath", "")
	require.NoError(t, err)
	assert.True(t, c.Escalate)
}

func TestTriageHandler(t *testing.T) {
	repo := scheduling.NewMemoryRepository()
	h := NewTriageHandler(NewUrgentDesk(KeywordClassifier{}, repo, nil), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/triage", strings.NewReader(`{"message":"mild itch"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"severity":"ROUTINE","summary":"No urgent indicators detected.","escalate":false}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/triage", strings.NewReader(`{"message":"heavy bleeding"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"severity":"URGENT"`)
	assert.Contains(t, rec.Body.String(), `"urgent_case_id"`)

	cases, err := repo.ListUrgentCases(context.Background())
	require.NoError(t, err)
	assert.Len(t, cases, 1)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/triage", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
