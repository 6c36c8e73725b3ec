package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/uasprep/mockexam-backend/internal/middleware"
	"github.com/uasprep/mockexam-backend/internal/model"
	"github.com/uasprep/mockexam-backend/internal/response"
	"github.com/uasprep/mockexam-backend/internal/service"
	"github.com/uasprep/mockexam-backend/internal/validator"
)

// ExamPortalHandler handles the exam-taking endpoints: entering, answering,
// submitting, timing, and recovery.
type ExamPortalHandler struct {
	sessionService *service.ExamSessionService
}

// NewExamPortalHandler creates a new ExamPortalHandler.
func NewExamPortalHandler(sessionService *service.ExamSessionService) *ExamPortalHandler {
	return &ExamPortalHandler{sessionService: sessionService}
}

// failSession maps session service errors to response codes.
func failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNoActiveAttempt):
		response.Fail(c, http.StatusConflict, response.ErrNoActiveAttempt)
	case errors.Is(err, service.ErrNoCurrentSection),
		errors.Is(err, service.ErrSectionNotOpen),
		errors.Is(err, service.ErrNoSections):
		response.Fail(c, http.StatusConflict, response.ErrInvalidState)
	case errors.Is(err, service.ErrAttemptBusy):
		response.Fail(c, http.StatusConflict, response.ErrAttemptBusy)
	case errors.Is(err, service.ErrNoFinishedAttempt):
		response.Fail(c, http.StatusNotFound, response.ErrNoResults)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// examContext pulls the authenticated user and the :exam_id param.
func examContext(c *gin.Context) (int, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uuid.Nil, false
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, uuid.Nil, false
	}
	return claims.UserID, examID, true
}

// EnterExam godoc
// POST /api/v1/exams/:exam_id/enter
// Finds or creates the user's active attempt and starts the current section.
func (h *ExamPortalHandler) EnterExam(c *gin.Context) {
	userID, examID, ok := examContext(c)
	if !ok {
		return
	}

	state, err := h.sessionService.EnterExam(c.Request.Context(), userID, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
			return
		}
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// GetSectionQuestions godoc
// GET /api/v1/exams/:exam_id/questions
func (h *ExamPortalHandler) GetSectionQuestions(c *gin.Context) {
	userID, examID, ok := examContext(c)
	if !ok {
		return
	}

	questions, err := h.sessionService.FetchSectionQuestions(c.Request.Context(), userID, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, questions)
}

// SaveAnswer godoc
// POST /api/v1/exams/:exam_id/answers
func (h *ExamPortalHandler) SaveAnswer(c *gin.Context) {
	userID, _, ok := examContext(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.sessionService.SaveAnswer(c.Request.Context(), userID, req.QuestionID, req.OptionID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answer": answer})
}

// SubmitSection godoc
// POST /api/v1/exams/:exam_id/sections/submit
// Scores the current section and advances, or finishes the exam.
func (h *ExamPortalHandler) SubmitSection(c *gin.Context) {
	userID, examID, ok := examContext(c)
	if !ok {
		return
	}

	result, err := h.sessionService.SubmitSection(c.Request.Context(), userID, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// SubmitExam godoc
// POST /api/v1/exams/:exam_id/submit
// Force-finishes the whole attempt.
func (h *ExamPortalHandler) SubmitExam(c *gin.Context) {
	userID, examID, ok := examContext(c)
	if !ok {
		return
	}

	result, err := h.sessionService.SubmitExam(c.Request.Context(), userID, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// CheckTime godoc
// GET /api/v1/exams/:exam_id/time
func (h *ExamPortalHandler) CheckTime(c *gin.Context) {
	userID, examID, ok := examContext(c)
	if !ok {
		return
	}

	status, err := h.sessionService.CheckTimeRemaining(c.Request.Context(), userID, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}

// AutoSave godoc
// POST /api/v1/exams/:exam_id/autosave
func (h *ExamPortalHandler) AutoSave(c *gin.Context) {
	userID, examID, ok := examContext(c)
	if !ok {
		return
	}

	var req model.AutoSaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.AutoSave(c.Request.Context(), userID, examID, &req)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// RecoverSession godoc
// POST /api/v1/exams/:exam_id/recover
// Reconciles the attempt after a disconnect or page reload.
func (h *ExamPortalHandler) RecoverSession(c *gin.Context) {
	userID, examID, ok := examContext(c)
	if !ok {
		return
	}

	result, err := h.sessionService.RecoverSession(c.Request.Context(), userID, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetSessionStatus godoc
// GET /api/v1/exams/:exam_id/status
func (h *ExamPortalHandler) GetSessionStatus(c *gin.Context) {
	userID, examID, ok := examContext(c)
	if !ok {
		return
	}

	status, err := h.sessionService.GetSessionStatus(c.Request.Context(), userID, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}

// GetResults godoc
// GET /api/v1/exams/:exam_id/results
func (h *ExamPortalHandler) GetResults(c *gin.Context) {
	userID, examID, ok := examContext(c)
	if !ok {
		return
	}

	results, err := h.sessionService.GetResults(c.Request.Context(), userID, examID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, results)
}
