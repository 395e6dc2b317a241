package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

// ListTasks возвращает задания, при необходимости отфильтрованные по категории.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	tasks, err := h.service.ListTasks(r.Context(), category)
	if err != nil {
		h.fail(w, err, "list tasks error", zap.String("category", category))
		return
	}

	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// GetTask возвращает задание по идентификатору.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")

	task, err := h.service.GetTask(r.Context(), taskID)
	if err != nil {
		h.fail(w, err, "get task error", zap.String("taskID", taskID))
		return
	}

	writeJSON(w, http.StatusOK, task)
}

type rateRequest struct {
	TaskID  string `json:"taskId" validate:"required"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// RateTask сохраняет оценку задания от текущего пользователя.
func (h *Handler) RateTask(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req rateRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err, "decode rate request")
		return
	}

	review, err := h.service.RateTask(r.Context(), ident, model.Rating{
		TaskID:  req.TaskID,
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		h.fail(w, err, "rate task error", zap.String("userID", ident.UserID), zap.String("taskID", req.TaskID))
		return
	}

	writeJSON(w, http.StatusOK, review)
}

type zapperApplicationRequest struct {
	FirstName   string   `json:"firstName" validate:"min=2,max=100"`
	LastName    string   `json:"lastName" validate:"min=2,max=100"`
	Email       string   `json:"email" validate:"required,email"`
	Phone       string   `json:"phone" validate:"phone"`
	DateOfBirth string   `json:"dob" validate:"adult"`
	Address     string   `json:"address" validate:"min=5,max=500"`
	City        string   `json:"city" validate:"min=2,max=100"`
	State       string   `json:"state" validate:"usstate"`
	Zip         string   `json:"zip" validate:"zipcode"`
	SSN         string   `json:"ssn" validate:"ssn"`
	Skills      []string `json:"skills" validate:"min=1,dive,required,max=100"`
}

type zapperApplicationResponse struct {
	ID int64 `json:"id"`
}

// SubmitZapperApplication принимает анкету исполнителя.
func (h *Handler) SubmitZapperApplication(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req zapperApplicationRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, err, "decode zapper application")
		return
	}

	// Формат уже проверен тегом adult.
	dob, _ := time.Parse(time.DateOnly, req.DateOfBirth)

	id, err := h.service.SubmitZapperApplication(r.Context(), ident, model.ZapperApplication{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Phone:       req.Phone,
		DateOfBirth: dob,
		Address:     req.Address,
		City:        req.City,
		State:       req.State,
		Zip:         req.Zip,
		Skills:      req.Skills,
	}, req.SSN)
	if err != nil {
		h.fail(w, err, "submit zapper application error", zap.String("userID", ident.UserID))
		return
	}

	writeJSON(w, http.StatusCreated, zapperApplicationResponse{ID: id})
}
