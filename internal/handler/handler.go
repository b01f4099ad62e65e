package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"busybee/internal/apierror"
	"busybee/internal/logger"
	"busybee/internal/schema"
	"busybee/internal/task"
	"busybee/pkg"
)

const maxBodySize = 1 << 20

const (
	msgCreated = "Task created successfully!"
	msgDeleted = "Task deleted successfully"
)

type TaskHandler struct {
	service task.Service
	log     logger.Logger
}

func NewTaskHandler(service task.Service, log logger.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		log:     log,
	}
}

func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tasks", h.getTasks).Methods(http.MethodGet)
	r.HandleFunc("/tasks", h.createTask).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", h.getTaskByID).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{id}", h.updateTask).Methods(http.MethodPut)
	r.HandleFunc("/tasks/{id}", h.deleteTask).Methods(http.MethodDelete)
}

func (h *TaskHandler) getTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context()).With("where", "handler")

	completed, err := schema.ParseCompleted(r.URL.Query().Get("completed"))
	if err != nil {
		log.Debug("handler: invalid completed filter", "error", err)
		apierror.Handle(w, r, err)
		return
	}

	tasks, err := h.service.GetAllTasks(r.Context(), completed)
	if err != nil {
		apierror.Handle(w, r, err)
		return
	}
	log.Info("handler: tasks retrieved", "count", len(tasks), "completed", completed)
	pkg.WriteJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) getTaskByID(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context()).With("where", "handler")

	id, err := schema.ParseID(mux.Vars(r)["id"])
	if err != nil {
		log.Debug("handler: invalid task id", "error", err)
		apierror.Handle(w, r, err)
		return
	}

	t, err := h.service.GetTaskByID(r.Context(), id)
	if err != nil {
		apierror.Handle(w, r, err)
		return
	}
	log.Info("handler: task retrieved", "id", t.ID)
	pkg.WriteJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) createTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context()).With("where", "handler")

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	payload, err := schema.ParseCreate(body)
	if err != nil {
		log.Debug("handler: invalid create payload", "error", err)
		apierror.Handle(w, r, err)
		return
	}

	if err := h.service.CreateTask(r.Context(), payload); err != nil {
		apierror.Handle(w, r, err)
		return
	}
	log.Info("handler: task created", "title", payload.Title)
	pkg.WriteMessage(w, http.StatusCreated, msgCreated)
}

func (h *TaskHandler) updateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context()).With("where", "handler")

	id, err := schema.ParseID(mux.Vars(r)["id"])
	if err != nil {
		log.Debug("handler: invalid task id", "error", err)
		apierror.Handle(w, r, err)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	patch, err := schema.ParseUpdate(body)
	if err != nil {
		log.Debug("handler: invalid update payload", "id", id, "error", err)
		apierror.Handle(w, r, err)
		return
	}

	updated, err := h.service.UpdateTask(r.Context(), id, patch)
	if err != nil {
		apierror.Handle(w, r, err)
		return
	}
	log.Info("handler: task updated", "id", id)
	pkg.WriteJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) deleteTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context()).With("where", "handler")

	id, err := schema.ParseID(mux.Vars(r)["id"])
	if err != nil {
		log.Debug("handler: invalid task id", "error", err)
		apierror.Handle(w, r, err)
		return
	}

	if err := h.service.DeleteTask(r.Context(), id); err != nil {
		apierror.Handle(w, r, err)
		return
	}
	log.Info("handler: task deleted", "id", id)
	pkg.WriteMessage(w, http.StatusOK, msgDeleted)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pkg.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		apierror.Handle(w, r, err)
		return nil, false
	}
	return body, true
}
