package httpserver

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mcpsandbox/mcpsandbox/internal/metrics"
	"github.com/mcpsandbox/mcpsandbox/internal/session"
	"github.com/mcpsandbox/mcpsandbox/internal/validate"
	"github.com/mcpsandbox/mcpsandbox/pkg/types"
)

// statusFor maps an error kind onto an HTTP status for the tool API.
func statusFor(kind string) int {
	switch kind {
	case types.ErrInvalidSessionID, types.ErrInvalidFilename, types.ErrInvalidPath,
		types.ErrInvalidContent, types.ErrCodeTooLarge, types.ErrUploadTooLarge:
		return http.StatusBadRequest
	case types.ErrSessionNotFound, types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrFileExists, types.ErrSessionBusy:
		return http.StatusConflict
	case types.ErrMaxSessions:
		return http.StatusTooManyRequests
	case types.ErrArtifactTooLarge:
		return http.StatusRequestEntityTooLarge
	case types.ErrDockerUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrDockerError, types.ErrExecutionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err *types.Error) error {
	return c.JSON(statusFor(err.Kind), err)
}

// downloadArtifact streams an artifact's raw bytes. Error kinds map onto
// 404/413/500 as the artifact surface promises.
func (s *Server) downloadArtifact(c echo.Context) error {
	sessionID := c.Param("session_id")
	filename := c.Param("filename")
	path := session.DataDir + "/" + filename

	result, rerr := s.mgr.Read(c.Request().Context(), sessionID, path)
	if rerr != nil {
		switch rerr.Kind {
		case types.ErrArtifactTooLarge:
			return c.String(http.StatusRequestEntityTooLarge, rerr.Message)
		case types.ErrSessionNotFound, types.ErrNotFound, types.ErrInvalidPath:
			return c.String(http.StatusNotFound, rerr.Message)
		default:
			return c.String(http.StatusInternalServerError, rerr.Message)
		}
	}

	fileBytes, err := base64.StdEncoding.DecodeString(result.ContentBase64)
	if err != nil {
		return c.String(http.StatusInternalServerError, "artifact decode failed")
	}

	s.log.Info().Str("session_id", sessionID).Str("filename", result.Filename).
		Int("size_bytes", len(fileBytes)).Msg("artifact download")
	metrics.ArtifactDownloadsTotal.Inc()

	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf("inline; filename=%q", result.Filename))
	return c.Blob(http.StatusOK, result.MimeType, fileBytes)
}

func (s *Server) upload(c echo.Context) error {
	var req types.UploadRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, types.NewError(types.ErrInvalidContent, "malformed request body"))
	}
	if err := validate.SessionID(req.SessionID); err != nil {
		return writeError(c, err)
	}
	if err := validate.Filename(req.Filename); err != nil {
		return writeError(c, err)
	}
	if err := validate.UploadSize(req.ContentBase64, s.cfg.MaxUploadBytes); err != nil {
		return writeError(c, err)
	}

	result, uerr := s.mgr.Upload(c.Request().Context(), req.SessionID, req.Filename, req.ContentBase64, req.Overwrite)
	if uerr != nil {
		return writeError(c, uerr)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) execute(c echo.Context) error {
	var req types.ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, types.NewError(types.ErrInvalidContent, "malformed request body"))
	}
	if err := validate.SessionID(req.SessionID); err != nil {
		return writeError(c, err)
	}
	if err := validate.CodeSize(req.Code, s.cfg.MaxCodeBytes); err != nil {
		return writeError(c, err)
	}

	result, xerr := s.mgr.Execute(c.Request().Context(), req.SessionID, req.Code)
	if xerr != nil {
		return writeError(c, xerr)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) read(c echo.Context) error {
	var req types.ReadRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, types.NewError(types.ErrInvalidContent, "malformed request body"))
	}

	result, rerr := s.mgr.Read(c.Request().Context(), req.SessionID, req.Path)
	if rerr != nil {
		return writeError(c, rerr)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) list(c echo.Context) error {
	var req types.SessionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, types.NewError(types.ErrInvalidContent, "malformed request body"))
	}
	if err := requireSessionID(req.SessionID); err != nil {
		return writeError(c, err)
	}

	result, lerr := s.mgr.List(c.Request().Context(), req.SessionID)
	if lerr != nil {
		return writeError(c, lerr)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) close(c echo.Context) error {
	var req types.SessionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, types.NewError(types.ErrInvalidContent, "malformed request body"))
	}
	if err := requireSessionID(req.SessionID); err != nil {
		return writeError(c, err)
	}

	result, cerr := s.mgr.Close(c.Request().Context(), req.SessionID)
	if cerr != nil {
		return writeError(c, cerr)
	}
	return c.JSON(http.StatusOK, result)
}

// requireSessionID validates an id that must name an existing session.
func requireSessionID(sessionID string) *types.Error {
	if sessionID == "" {
		return types.NewError(types.ErrInvalidSessionID, "session_id is required")
	}
	return validate.SessionID(sessionID)
}
