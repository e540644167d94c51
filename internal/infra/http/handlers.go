package http

import (
	"errors"
	"net/http"

	"keygate/internal/domain"
	"keygate/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type fingerprintBody struct {
	CanvasHash          string `json:"canvasHash"`
	DeviceMemory        string `json:"deviceMemory"`
	HardwareConcurrency int    `json:"hardwareConcurrency"`
	Lang                string `json:"lang"`
	Platform            string `json:"platform"`
	TZ                  int    `json:"tz"`
	UA                  string `json:"ua"`
	WebGLHash           string `json:"webGLHash"`
}

type registerRequest struct {
	ClientID    string           `json:"client_id" binding:"required"`
	PublicKey   string           `json:"public_key" binding:"required"`
	Fingerprint *fingerprintBody `json:"fingerprint" binding:"required"`
	UniqueID    string           `json:"unique_id" binding:"required"`
}

type checkKeyRequest struct {
	UniqueID  string `json:"unique_id" binding:"required"`
	PublicKey string `json:"public_key" binding:"required"`
}

type revokeKeyRequest struct {
	ClientID string `json:"client_id" binding:"required"`
}

type encryptMessageRequest struct {
	Message  string `json:"message" binding:"required"`
	UniqueID string `json:"unique_id"`
}

type keyRecordResponse struct {
	ClientID    string          `json:"client_id"`
	Fingerprint fingerprintBody `json:"fingerprint"`
	PublicKey   string          `json:"public_key"`
	UniqueID    string          `json:"unique_id"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	err := s.registry.Register(c.Request.Context(), usecase.RegisterInput{
		ClientID:    req.ClientID,
		Identity:    req.UniqueID,
		Fingerprint: req.Fingerprint.toDomain(),
		PublicKey:   req.PublicKey,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Registered!"})
}

func (s *Server) handleCheckKey(c *gin.Context) {
	var req checkKeyRequest
	if !bindJSON(c, &req) {
		return
	}
	exists, err := s.registry.CheckKey(c.Request.Context(), req.UniqueID, req.PublicKey)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (s *Server) handleListKeys(c *gin.Context) {
	records, err := s.registry.ListKeys(c.Request.Context(), authorization(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]keyRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, keyRecordResponse{
			ClientID:    rec.ClientID,
			Fingerprint: fingerprintFromDomain(rec.Fingerprint),
			PublicKey:   rec.PublicKey,
			UniqueID:    rec.Identity,
		})
	}
	c.JSON(http.StatusOK, gin.H{"records": out})
}

func (s *Server) handleRevokeKey(c *gin.Context) {
	var req revokeKeyRequest
	if !bindJSON(c, &req) {
		return
	}
	revoked, err := s.registry.RevokeKey(c.Request.Context(), authorization(c), req.ClientID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": revoked})
}

func (s *Server) handleEncryptMessage(c *gin.Context) {
	var req encryptMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	ciphertext, err := s.registry.EncryptMessage(c.Request.Context(), authorization(c), req.Message, req.UniqueID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"encrypted_message": ciphertext})
}

func authorization(c *gin.Context) string {
	return c.GetHeader("Authorization")
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return false
	}
	return true
}

func (f *fingerprintBody) toDomain() domain.Fingerprint {
	if f == nil {
		return domain.Fingerprint{}
	}
	return domain.Fingerprint{
		CanvasHash:          f.CanvasHash,
		DeviceMemory:        f.DeviceMemory,
		HardwareConcurrency: f.HardwareConcurrency,
		Lang:                f.Lang,
		Platform:            f.Platform,
		TZ:                  f.TZ,
		UA:                  f.UA,
		WebGLHash:           f.WebGLHash,
	}
}

func fingerprintFromDomain(f domain.Fingerprint) fingerprintBody {
	return fingerprintBody{
		CanvasHash:          f.CanvasHash,
		DeviceMemory:        f.DeviceMemory,
		HardwareConcurrency: f.HardwareConcurrency,
		Lang:                f.Lang,
		Platform:            f.Platform,
		TZ:                  f.TZ,
		UA:                  f.UA,
		WebGLHash:           f.WebGLHash,
	}
}

// writeError maps core errors onto status codes. Denials share one body so
// callers cannot tell an unknown identity from a bad signature, and internal
// failures are logged but never echoed.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrMissingCredentials):
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	case errors.Is(err, domain.ErrUnknownIdentity),
		errors.Is(err, domain.ErrBadSignature),
		errors.Is(err, domain.ErrTargetMismatch):
		writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
	default:
		s.log.Error("request failed",
			"request_id", c.GetString(requestIDKey),
			"path", c.FullPath(),
			"error", err,
		)
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
