// Package httpapi поднимает HTTP/JSON поверхность сервиса: приём заказов
// для order-флоу и операции управления вместимостью для админ-панели.
package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/nailflow/capacity/internal/domain"
	"github.com/nailflow/capacity/internal/service/admin"
	"github.com/nailflow/capacity/internal/service/ledger"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "X-Idempotency-Replayed"
	headerAdminUser      = "X-Admin-User"

	defaultIdempotencyTTL = 24 * time.Hour
	maxRequestBodyBytes   = 4 << 10
)

// Server связывает ledger и админ-контроллер с HTTP-маршрутами.
type Server struct {
	ledger         *ledger.Ledger
	admin          *admin.Controller
	idem           domain.IdempotencyRepository
	logger         *log.Entry
	adminToken     string
	idempotencyTTL time.Duration
}

// ServerOption настраивает Server.
type ServerOption func(*Server)

// WithIdempotency подключает хранилище idempotency-ключей для POST /v1/admissions.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.idem = repo
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithAdminToken задаёт bearer-токен, открывающий админ-маршруты.
// Пустой токен оставляет админ-поверхность закрытой.
func WithAdminToken(token string) ServerOption {
	return func(s *Server) { s.adminToken = token }
}

// NewServer конструирует HTTP-сервер с зависимостями.
func NewServer(ldg *ledger.Ledger, adm *admin.Controller, logger *log.Entry, options ...ServerOption) *Server {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	s := &Server{
		ledger:         ldg,
		admin:          adm,
		logger:         logger,
		idempotencyTTL: defaultIdempotencyTTL,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Router собирает все маршруты сервиса.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/admissions", s.handleAdmit).Methods(http.MethodPost)

	adminRouter := r.PathPrefix("/v1/admin").Subrouter()
	adminRouter.Use(s.adminMiddleware)
	adminRouter.HandleFunc("/capacity", s.handleGetCapacity).Methods(http.MethodGet)
	adminRouter.HandleFunc("/capacity", s.handleUpdateCapacity).Methods(http.MethodPut)
	adminRouter.HandleFunc("/capacity/reset", s.handleResetCount).Methods(http.MethodPost)
	adminRouter.HandleFunc("/capacity/next-week", s.handleCreateNextWeek).Methods(http.MethodPost)
	adminRouter.HandleFunc("/capacity/history", s.handleHistory).Methods(http.MethodGet)

	return r
}

type admissionResponse struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	WeekStart string `json:"week_start"`
}

type capacityResponse struct {
	WeekStart     string `json:"week_start"`
	NextWeekStart string `json:"next_week_start"`
	Capacity      int    `json:"capacity"`
	OrdersCount   int    `json:"orders_count"`
	Remaining     int    `json:"remaining"`
}

type auditEventResponse struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Actor    string `json:"actor,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Occurred string `json:"occurred_at"`
}

type updateCapacityRequest struct {
	Capacity int `json:"capacity"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleAdmit решает вопрос приёма одного заказа. Повтор с тем же
// Idempotency-Key возвращает сохранённое решение, не трогая счётчик.
func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("failed to read request body"))
		return
	}

	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" || s.idem == nil {
		s.admitAndRespond(w, nil)
		return
	}

	requestHash := hashRequest(r.Method, r.URL.Path, body)
	_, err = s.idem.CreateProcessing(key, requestHash, time.Now().UTC().Add(s.idempotencyTTL))
	switch {
	case err == nil:
		s.admitAndRespond(w, func(status int, responseBody []byte) {
			var markErr error
			if status < http.StatusInternalServerError {
				markErr = s.idem.MarkDone(key, responseBody, status)
			} else {
				markErr = s.idem.MarkFailed(key, responseBody, status)
			}
			if markErr != nil {
				s.logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to finalize idempotency record")
			}
		})
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		s.writeError(w, http.StatusUnprocessableEntity, domain.ErrIdempotencyHashMismatch)
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		s.replayStored(w, key)
	default:
		s.logger.WithError(err).Error("idempotency create failed")
		s.writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

// admitAndRespond выполняет решение и отдаёт его клиенту; finalize (если задан)
// получает итоговый статус и тело для фиксации idempotency-записи.
func (s *Server) admitAndRespond(w http.ResponseWriter, finalize func(status int, body []byte)) {
	decision, err := s.ledger.Admit()
	if err != nil {
		s.logger.WithError(err).Error("admission failed")
		body, _ := json.Marshal(errorResponse{Error: "internal error"})
		if finalize != nil {
			finalize(http.StatusInternalServerError, body)
		}
		s.writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	resp := admissionResponse{
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
		WeekStart: decision.WeekStart.Format(time.RFC3339),
	}
	responseBody, err := json.Marshal(resp)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	if finalize != nil {
		finalize(http.StatusOK, responseBody)
	}
	s.writeRaw(w, http.StatusOK, responseBody)
}

// replayStored возвращает ранее сохранённый ответ по idempotency-ключу.
func (s *Server) replayStored(w http.ResponseWriter, key string) {
	record, err := s.idem.Get(key)
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Error("failed to load idempotency record")
		s.writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	if record.Status == domain.IdempotencyStatusProcessing {
		s.writeError(w, http.StatusConflict, errors.New("request with this idempotency key is still being processed"))
		return
	}

	w.Header().Set(headerReplayed, "true")
	status := record.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	s.writeRaw(w, status, record.ResponseBody)
}

func (s *Server) handleGetCapacity(w http.ResponseWriter, r *http.Request) {
	status, err := s.admin.GetWeeklyCapacity(principalFrom(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toCapacityResponse(status))
}

func (s *Server) handleUpdateCapacity(w http.ResponseWriter, r *http.Request) {
	var req updateCapacityRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	status, err := s.admin.UpdateWeeklyCapacity(principalFrom(r), req.Capacity)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toCapacityResponse(status))
}

func (s *Server) handleResetCount(w http.ResponseWriter, r *http.Request) {
	status, err := s.admin.ResetCurrentWeekCount(principalFrom(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toCapacityResponse(status))
}

func (s *Server) handleCreateNextWeek(w http.ResponseWriter, r *http.Request) {
	status, err := s.admin.CreateNextWeekCapacity(principalFrom(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toCapacityResponse(status))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.admin.WeekHistory(principalFrom(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := make([]auditEventResponse, 0, len(events))
	for _, event := range events {
		resp = append(resp, auditEventResponse{
			ID:       event.ID,
			Type:     event.Type,
			Actor:    event.Actor,
			Detail:   event.Detail,
			Occurred: event.Occurred.Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// adminMiddleware сверяет bearer-токен. Сессии и аутентификация живут во
// внешнем сервисе; токен лишь отмечает уже авторизованного администратора.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			s.writeError(w, http.StatusForbidden, domain.ErrNotAuthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			s.writeError(w, http.StatusForbidden, domain.ErrNotAuthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func principalFrom(r *http.Request) admin.Principal {
	id := strings.TrimSpace(r.Header.Get(headerAdminUser))
	if id == "" {
		id = "admin"
	}
	// Middleware уже проверил токен: до обработчиков доходят только админы.
	return admin.Principal{ID: id, IsAdmin: true}
}

func toCapacityResponse(status admin.WeeklyCapacityStatus) capacityResponse {
	return capacityResponse{
		WeekStart:     status.WeekStart.Format(time.RFC3339),
		NextWeekStart: status.NextWeekStart.Format(time.RFC3339),
		Capacity:      status.Capacity,
		OrdersCount:   status.OrdersCount,
		Remaining:     status.Remaining,
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCapacity), errors.Is(err, domain.ErrInvalidCount):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrWeekAlreadyExists):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrNotAuthorized):
		s.writeError(w, http.StatusForbidden, err)
	default:
		s.logger.WithError(err).Error("admin operation failed")
		s.writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	s.writeRaw(w, status, body)
}

func (s *Server) writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{0})
	sum.Write([]byte(path))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
