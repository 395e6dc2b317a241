package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

const testTaskID = "0b6f7e3c-9a51-4c1e-8d7f-2f1f3b0f9d11"

func repoWithTask(providerID *string) *stubRepo {
	repo := newStubRepo()
	repo.tasks[testTaskID] = &model.Task{
		ID:         testTaskID,
		ClientID:   "client_1",
		ProviderID: providerID,
		Title:      "Paint fence",
		Category:   "Painting",
	}
	return repo
}

func strPtr(s string) *string { return &s }

func TestRateTask_RatingOutOfRangeNeverTouchesStore(t *testing.T) {
	for _, rating := range []int{0, 6, -1} {
		repo := repoWithTask(strPtr("provider_1"))
		svc := newTestService(repo, &mockGateway{})

		_, err := svc.RateTask(context.Background(), model.Identity{UserID: "client_1"}, model.Rating{
			TaskID: testTaskID,
			Rating: rating,
		})
		assert.ErrorIs(t, err, ErrValidation, "rating %d", rating)
		assert.Zero(t, repo.getTaskHits, "rating %d", rating)
	}
}

func TestRateTask_BadTaskID(t *testing.T) {
	repo := repoWithTask(strPtr("provider_1"))
	svc := newTestService(repo, &mockGateway{})

	_, err := svc.RateTask(context.Background(), model.Identity{UserID: "client_1"}, model.Rating{TaskID: "42", Rating: 5})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, repo.getTaskHits)
}

func TestRateTask_NonParticipantForbidden(t *testing.T) {
	repo := repoWithTask(strPtr("provider_1"))
	svc := newTestService(repo, &mockGateway{})

	_, err := svc.RateTask(context.Background(), model.Identity{UserID: "stranger"}, model.Rating{TaskID: testTaskID, Rating: 4})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, repo.reviews)
}

func TestRateTask_TaskMissing(t *testing.T) {
	svc := newTestService(newStubRepo(), &mockGateway{})

	_, err := svc.RateTask(context.Background(), model.Identity{UserID: "client_1"}, model.Rating{TaskID: testTaskID, Rating: 4})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRateTask_RevieweeIsTheOtherParty(t *testing.T) {
	repo := repoWithTask(strPtr("provider_1"))
	svc := newTestService(repo, &mockGateway{})

	byClient, err := svc.RateTask(context.Background(), model.Identity{UserID: "client_1"}, model.Rating{TaskID: testTaskID, Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, "provider_1", byClient.RevieweeID)

	byProvider, err := svc.RateTask(context.Background(), model.Identity{UserID: "provider_1"}, model.Rating{TaskID: testTaskID, Rating: 3})
	require.NoError(t, err)
	assert.Equal(t, "client_1", byProvider.RevieweeID)
}

func TestRateTask_SecondRatingUpdatesInPlace(t *testing.T) {
	repo := repoWithTask(strPtr("provider_1"))
	svc := newTestService(repo, &mockGateway{})
	ident := model.Identity{UserID: "client_1"}

	first, err := svc.RateTask(context.Background(), ident, model.Rating{TaskID: testTaskID, Rating: 2, Comment: "late"})
	require.NoError(t, err)

	second, err := svc.RateTask(context.Background(), ident, model.Rating{TaskID: testTaskID, Rating: 5, Comment: "fixed it"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.reviews, 1)
	assert.Equal(t, 5, repo.reviews[reviewKey{taskID: testTaskID, reviewerID: "client_1"}].Rating)
}

func TestRateTask_NoProviderYet(t *testing.T) {
	repo := repoWithTask(nil)
	svc := newTestService(repo, &mockGateway{})

	_, err := svc.RateTask(context.Background(), model.Identity{UserID: "client_1"}, model.Rating{TaskID: testTaskID, Rating: 4})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestListTasks_FiltersByCategory(t *testing.T) {
	repo := repoWithTask(nil)
	repo.tasks["other"] = &model.Task{ID: "other", Category: "Moving"}
	svc := newTestService(repo, &mockGateway{})

	tasks, err := svc.ListTasks(context.Background(), " Painting ")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, testTaskID, tasks[0].ID)
}

func TestGetTask(t *testing.T) {
	svc := newTestService(repoWithTask(nil), &mockGateway{})

	task, err := svc.GetTask(context.Background(), testTaskID)
	require.NoError(t, err)
	assert.Equal(t, "Paint fence", task.Title)

	_, err = svc.GetTask(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrValidation)
}
