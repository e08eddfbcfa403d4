package handler

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/docdrop/internal/domain"
	"github.com/kursadbilgin/docdrop/internal/identity"
	"github.com/kursadbilgin/docdrop/internal/service"
	"github.com/kursadbilgin/docdrop/internal/transport"
)

const filesFormField = "files"

type UploadService interface {
	Create(ctx context.Context, owner domain.Owner) (*service.Session, error)
	AddFiles(ctx context.Context, owner domain.Owner, sessionID string, handles []domain.FileHandle) ([]int, []domain.Rejection, error)
	RemoveFile(ctx context.Context, owner domain.Owner, sessionID string, index int) error
	ResetFile(ctx context.Context, owner domain.Owner, sessionID string, index int) error
	Run(ctx context.Context, owner domain.Owner, sessionID string) error
	Snapshot(ctx context.Context, owner domain.Owner, sessionID string) (domain.Batch, error)
	Delete(ctx context.Context, owner domain.Owner, sessionID string) error
}

type UploadHandler struct {
	service UploadService
}

func NewUploadHandler(service UploadService) (*UploadHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("upload service is required")
	}
	return &UploadHandler{service: service}, nil
}

func RegisterUploadRoutes(router fiber.Router, service UploadService, resolver identity.Resolver) error {
	if resolver == nil {
		return fmt.Errorf("identity resolver is required")
	}
	h, err := NewUploadHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1", RequireOwner(resolver))
	v1.Post("/uploads", h.CreateSession)
	v1.Get("/uploads/:id", h.GetSession)
	v1.Delete("/uploads/:id", h.DeleteSession)
	v1.Post("/uploads/:id/files", h.AddFiles)
	v1.Delete("/uploads/:id/files/:index", h.RemoveFile)
	v1.Post("/uploads/:id/files/:index/reset", h.ResetFile)
	v1.Post("/uploads/:id/run", h.RunSession)

	return nil
}

type sessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

type fileItemResponse struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	State       string `json:"state"`
	Progress    int    `json:"progress"`
	ErrorDetail string `json:"errorDetail,omitempty"`
	Path        string `json:"path,omitempty"`
	DocumentID  string `json:"documentId,omitempty"`
}

type batchResponse struct {
	ID        string             `json:"id"`
	Version   uint64             `json:"version"`
	Complete  bool               `json:"complete"`
	IdleCount int                `json:"idleCount"`
	Counts    map[string]int     `json:"counts"`
	Items     []fileItemResponse `json:"items"`
}

type acceptedFileResponse struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
}

type rejectedFileResponse struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type addFilesResponse struct {
	Accepted []acceptedFileResponse `json:"accepted"`
	Rejected []rejectedFileResponse `json:"rejected"`
}

func (h *UploadHandler) CreateSession(c *fiber.Ctx) error {
	owner, err := ownerFromCtx(c)
	if err != nil {
		return err
	}

	session, err := h.service.Create(c.UserContext(), owner)
	if err != nil {
		return transport.ToHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(sessionResponse{
		ID:        session.ID,
		CreatedAt: session.CreatedAt,
	})
}

func (h *UploadHandler) GetSession(c *fiber.Ctx) error {
	owner, err := ownerFromCtx(c)
	if err != nil {
		return err
	}

	sessionID := c.Params("id")
	batch, err := h.service.Snapshot(c.UserContext(), owner, sessionID)
	if err != nil {
		return transport.ToHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(sessionID, batch))
}

func (h *UploadHandler) DeleteSession(c *fiber.Ctx) error {
	owner, err := ownerFromCtx(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.UserContext(), owner, c.Params("id")); err != nil {
		return transport.ToHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *UploadHandler) AddFiles(c *fiber.Ctx) error {
	owner, err := ownerFromCtx(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form with a files field is required")
	}
	headers := form.File[filesFormField]
	if len(headers) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "at least one file is required")
	}

	handles := make([]domain.FileHandle, 0, len(headers))
	for _, fh := range headers {
		h, err := fileHandleFromMultipart(fh)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}

	indices, rejections, err := h.service.AddFiles(c.UserContext(), owner, c.Params("id"), handles)
	if err != nil {
		return transport.ToHTTPError(err)
	}

	resp := addFilesResponse{
		Accepted: make([]acceptedFileResponse, 0, len(indices)),
		Rejected: make([]rejectedFileResponse, 0, len(rejections)),
	}
	accepted := acceptedHandles(handles, rejections)
	for i, index := range indices {
		if i >= len(accepted) {
			break
		}
		resp.Accepted = append(resp.Accepted, acceptedFileResponse{
			Index: index,
			Name:  accepted[i].Name,
			Size:  accepted[i].Size,
		})
	}
	for _, r := range rejections {
		resp.Rejected = append(resp.Rejected, rejectedFileResponse{Name: r.Name, Reason: r.Reason})
	}

	status := fiber.StatusCreated
	if len(indices) == 0 {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(resp)
}

func (h *UploadHandler) RemoveFile(c *fiber.Ctx) error {
	owner, err := ownerFromCtx(c)
	if err != nil {
		return err
	}
	index, err := parseIndex(c)
	if err != nil {
		return err
	}

	if err := h.service.RemoveFile(c.UserContext(), owner, c.Params("id"), index); err != nil {
		return transport.ToHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *UploadHandler) ResetFile(c *fiber.Ctx) error {
	owner, err := ownerFromCtx(c)
	if err != nil {
		return err
	}
	index, err := parseIndex(c)
	if err != nil {
		return err
	}

	if err := h.service.ResetFile(c.UserContext(), owner, c.Params("id"), index); err != nil {
		return transport.ToHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *UploadHandler) RunSession(c *fiber.Ctx) error {
	owner, err := ownerFromCtx(c)
	if err != nil {
		return err
	}

	sessionID := c.Params("id")
	if err := h.service.Run(c.UserContext(), owner, sessionID); err != nil {
		return transport.ToHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":     sessionID,
		"status": "running",
	})
}

func fileHandleFromMultipart(fh *multipart.FileHeader) (domain.FileHandle, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.FileHandle{}, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("cannot read %s", fh.Filename))
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.FileHandle{}, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("cannot read %s", fh.Filename))
	}

	return domain.FileHandle{
		Name:        fh.Filename,
		Size:        int64(len(data)),
		ContentType: strings.TrimSpace(fh.Header.Get(fiber.HeaderContentType)),
		Source:      domain.NewBytesSource(data),
	}, nil
}

func acceptedHandles(handles []domain.FileHandle, rejections []domain.Rejection) []domain.FileHandle {
	rejected := make(map[int]struct{}, len(rejections))
	for _, r := range rejections {
		rejected[r.Position] = struct{}{}
	}

	accepted := make([]domain.FileHandle, 0, len(handles))
	for i, h := range handles {
		if _, skip := rejected[i]; !skip {
			accepted = append(accepted, h)
		}
	}
	return accepted
}

func parseIndex(c *fiber.Ctx) (int, error) {
	index, err := c.ParamsInt("index")
	if err != nil || index < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "index must be a non-negative integer")
	}
	return index, nil
}

func toBatchResponse(sessionID string, batch domain.Batch) batchResponse {
	counts := make(map[string]int, 4)
	for state, n := range batch.Counts() {
		counts[state.String()] = n
	}

	items := make([]fileItemResponse, 0, len(batch.Items))
	for _, item := range batch.Items {
		items = append(items, fileItemResponse{
			Index:       item.Index,
			Name:        item.Handle.Name,
			Size:        item.Handle.Size,
			ContentType: item.Handle.ContentType,
			State:       item.State.String(),
			Progress:    item.Progress,
			ErrorDetail: item.ErrorDetail,
			Path:        item.Path,
			DocumentID:  item.DocumentID,
		})
	}

	return batchResponse{
		ID:        sessionID,
		Version:   batch.Version,
		Complete:  batch.Complete(),
		IdleCount: batch.IdleCount(),
		Counts:    counts,
		Items:     items,
	}
}
