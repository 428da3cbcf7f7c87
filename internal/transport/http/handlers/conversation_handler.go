package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vedran77/duet/internal/domain"
	"github.com/vedran77/duet/internal/service"
	"github.com/vedran77/duet/internal/transport/http/middleware"
	"github.com/vedran77/duet/pkg/validator"
)

// multipart overhead allowed on top of the attachment limit
const formOverhead = 1 << 20

type ConversationHandler struct {
	messageService *service.MessageService
	maxUploadBytes int64
	log            zerolog.Logger
}

func NewConversationHandler(messageService *service.MessageService, maxUploadBytes int64, log zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		messageService: messageService,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

type SendRequest struct {
	ReceiverID string `json:"receiverId" form:"receiverId" validate:"required,max=128"`
	Message    string `json:"message" form:"message" validate:"max=4000"`
	RoomID     string `json:"roomId,omitempty" form:"roomId" validate:"max=256"`
}

// History handles GET /conversations/{otherUserId}.
func (h *ConversationHandler) History(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	other := domain.UserID(chi.URLParam(r, "otherUserId"))

	resp, err := h.messageService.ListConversation(r.Context(), identity, other)
	if err != nil {
		writeServiceError(w, h.log, "history", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /conversations/send. The body is multipart with fields
// message, receiverId and an optional file; a JSON body works for text.
func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverhead)

	var (
		req    SendRequest
		upload *service.Upload
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
			return
		}

	case "multipart/form-data":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusBadRequest, service.Code(service.ErrUploadRejected), "Upload is too large")
				return
			}
			writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid multipart body")
			return
		}
		defer r.MultipartForm.RemoveAll()

		req.ReceiverID = r.FormValue("receiverId")
		req.Message = r.FormValue("message")
		req.RoomID = r.FormValue("roomId")

		file, header, err := r.FormFile("file")
		switch {
		case err == nil:
			defer file.Close()
			upload = &service.Upload{FileName: header.Filename, Content: file}
		case !errors.Is(err, http.ErrMissingFile):
			writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid file part")
			return
		}

	default:
		writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Use multipart/form-data or application/json")
		return
	}

	if errs := validator.Struct(req); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	res, err := h.messageService.Send(r.Context(), identity, service.SendInput{
		ReceiverID: domain.UserID(req.ReceiverID),
		Body:       req.Message,
		Upload:     upload,
		RoomID:     req.RoomID,
	})
	if err != nil {
		writeServiceError(w, h.log, "send", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
