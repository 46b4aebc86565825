package upload

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/taskflow-auth/internal/api"
)

// DefaultMaxBytes caps an uploaded image at 5 MiB.
const DefaultMaxBytes int64 = 5 << 20

// multipart framing allowance on top of the image itself
const formOverhead = 64 << 10

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// Response is returned by a successful upload.
type Response struct {
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl"`
}

type HandlerImpl struct {
	store    ImageStore
	maxBytes int64
	logger   *slog.Logger
}

func NewHandlerImpl(store ImageStore, maxBytes int64, logger *slog.Logger) *HandlerImpl {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HandlerImpl{store: store, maxBytes: maxBytes, logger: logger}
}

// UploadImage godoc
// @Summary      Upload Profile Image
// @Description  Stores a JPEG or PNG image and returns its public URL.
// @Tags         Upload
// @Accept       multipart/form-data
// @Produce      json
// @Param        image formData file true "Profile image"
// @Success      200 {object} Response "Uploaded"
// @Failure      400 {object} api.ErrorBody "Invalid Input"
// @Failure      413 {object} api.ErrorBody "Image is too large"
// @Failure      503 {object} api.ErrorBody "Storage unavailable"
// @Router       /auth/upload-image [post]
func (h *HandlerImpl) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "UploadImage"))

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
	file, header, err := r.FormFile("image")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			api.ErrorResponse(w, r, http.StatusRequestEntityTooLarge, "Image is too large")
			return
		}
		l.WarnContext(ctx, "No image in request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		l.WarnContext(ctx, "Failed to read image", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	if int64(len(data)) > h.maxBytes {
		api.ErrorResponse(w, r, http.StatusRequestEntityTooLarge, "Image is too large")
		return
	}

	// Trust the bytes, not the client's Content-Type.
	contentType := http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		l.InfoContext(ctx, "Rejected upload type",
			slog.String("detected", contentType),
			slog.String("filename", header.Filename),
		)
		api.ErrorResponse(w, r, http.StatusBadRequest, "Only .jpeg, .jpg and .png formats are allowed")
		return
	}

	key := uuid.NewString() + ext
	imageURL, err := h.store.Put(ctx, key, contentType, data)
	if err != nil {
		l.ErrorContext(ctx, "Failed to store image", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusServiceUnavailable, "Failed to store image")
		return
	}
	if strings.HasPrefix(imageURL, "/") {
		imageURL = requestOrigin(r) + imageURL
	}

	l.InfoContext(ctx, "Image uploaded", slog.String("key", key), slog.Int("bytes", len(data)))
	api.WriteJSONResponse(w, r, http.StatusOK, Response{
		Message:  "Image uploaded successfully",
		ImageURL: imageURL,
	})
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	// Only http and https are honoured from the proxy header.
	switch fwd := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))); fwd {
	case "http", "https":
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
